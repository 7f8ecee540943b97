package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixora/backend/internal/auth"
)

var errIssuerProvider = errors.New("issue-token requires IDENTITY_PROVIDER=jwt and IDENTITY_JWT_SECRET")

type issueTokenOptions struct {
	subject string
	email   string
	ttl     time.Duration
}

// NewIssueTokenCommand signs a development token the jwt identity provider accepts.
func NewIssueTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &issueTokenOptions{}

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign an identity token for local development",
		Long: `Sign an HS256 identity token with IDENTITY_JWT_SECRET.

Pass it as "Authorization: Bearer <token>" to /api/v1/auth/register or login.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Identity.Provider != "jwt" || cfg.Identity.JWTSecret == "" {
				return errIssuerProvider
			}

			issuer := auth.NewJWTIssuer(cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer, opts.ttl)
			token, err := issuer.Issue(opts.subject, opts.email)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"token": token}, token)
		},
	}

	cmd.Flags().StringVar(&opts.subject, "subject", "", "identity subject (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "email claim")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
