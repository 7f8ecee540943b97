package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/config"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/repository"
)

// RootOptions holds global flags and the dependencies shared by all commands.
type RootOptions struct {
	Format  string // "json" | "text"
	Verbose bool

	// LoadConfig and OpenStores are replaced in tests.
	LoadConfig func() (*config.Config, error)
	OpenStores func(ctx context.Context, cfg *config.Config, policy domain.StoryPolicy, logger *zap.Logger) (*repository.Stores, error)
	Logger     *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the socialctl CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.Load,
		OpenStores: repository.Open,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "socialctl",
		SilenceErrors: true,
		Short:         "Maintenance and development tasks for the Pixora backend",
		Long: `Run one-off maintenance against the configured record store.

Reads the same environment as the API server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Logger == nil {
				logger, err := newLogger(opts.Verbose)
				if err != nil {
					return err
				}
				opts.Logger = logger
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewRepairFollowsCommand(opts))
	cmd.AddCommand(NewIssueTokenCommand(opts))

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStores loads config and connects the configured store
func openStores(ctx context.Context, opts *RootOptions) (*repository.Stores, domain.StoryPolicy, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, domain.StoryPolicy{}, fmt.Errorf("load config: %w", err)
	}
	policy := domain.NewStoryPolicy(cfg.Stories.TTL, domain.SystemClock)
	stores, err := opts.OpenStores(ctx, cfg, policy, opts.Logger)
	if err != nil {
		return nil, domain.StoryPolicy{}, fmt.Errorf("open store: %w", err)
	}
	return stores, policy, nil
}
