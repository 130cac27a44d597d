// Command token mints API tokens signed with the server's JWT_SECRET, for
// operators and for services that call the admin routes.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"adearn-backend/internal/config"
	"adearn-backend/internal/services"
)

var errNoSecret = errors.New("JWT_SECRET is not set")

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token",
		Long:  "Mint a bearer token for the given user and role, signed with JWT_SECRET from the environment or .env.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != services.RoleUser && role != services.RoleAdmin {
				return fmt.Errorf("role must be %s or %s, got %q", services.RoleUser, services.RoleAdmin, role)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.JWTSecret == "" {
				return errNoSecret
			}

			token, err := services.NewJWTService(cfg.JWTSecret, ttl).GenerateToken(userID, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, token)
			return err
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "account id the token is issued to")
	cmd.Flags().StringVarP(&role, "role", "r", services.RoleUser, "token role (user or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", services.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	cmd.SetOut(out)
	cmd.SilenceUsage = true

	return cmd
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
