package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pixora/backend/internal/config"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/repository"
)

var errMigrateDriver = errors.New("migrate requires STORE_DRIVER=postgres")

// NewMigrateCommand applies the embedded schema migrations.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply database migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runMigrate(cmd, rootOpts, cfg)
		},
	}
}

func runMigrate(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) error {
	if cfg.Store.Driver != "postgres" {
		return errMigrateDriver
	}

	pool, err := repository.OpenPool(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.MigratePool(cmd.Context(), pool); err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), opts.Format, map[string]string{"status": "migrated"}, "migrations applied")
}

// NewSweepCommand removes expired stories once.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sweep",
		Short:        "Remove expired story items",
		Long:         "Physically remove every story item older than STORY_TTL. Safe to run repeatedly.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, policy, err := openStores(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer stores.Close()

			svc := domain.NewStoryService(stores.Accounts, policy, domain.NopRecorder{}, rootOpts.Logger)
			result, err := svc.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, result,
				fmt.Sprintf("removed %d expired stories from %d accounts", result.Removed, result.Modified))
		},
	}
}

// NewRepairFollowsCommand reconciles one-sided follow edges once.
func NewRepairFollowsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "repair-follows",
		Short:        "Make every followers list mirror the following lists",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, _, err := openStores(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer stores.Close()

			svc := domain.NewGraphService(stores.Accounts, domain.NopRecorder{}, rootOpts.Logger)
			result, err := svc.ReconcileFollowGraph(cmd.Context())
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, result,
				fmt.Sprintf("scanned %d accounts: %d edges added, %d removed", result.Scanned, result.Added, result.Removed))
		},
	}
}

func writeResult(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
