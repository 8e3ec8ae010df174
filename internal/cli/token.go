package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/domain"
)

type tokenOptions struct {
	userID string
	email  string
	ttl    time.Duration
}

type tokenResult struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command, which mints a session token
// for development and scripted clients.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint a session token for a user",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			tokens := auth.NewTokens(cfg.JWTSecret, cfg.SessionTTL)

			raw, s, err := tokens.Issue(domain.User{ID: opts.userID, Email: opts.email}, opts.ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			return write(cmd.OutOrStdout(), rootOpts.Format, tokenResult{
				Token:     raw,
				SessionID: s.ID,
				UserID:    s.User.ID,
				ExpiresAt: s.ExpiresAt,
			}, raw)
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "user id (token subject)")
	cmd.Flags().StringVar(&opts.email, "email", "", "user email")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (default MARKSYNC_SESSION_TTL)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
