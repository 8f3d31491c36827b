package commands

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quizforge/server/internal/adapter/outbound/jwt"
	"github.com/quizforge/server/internal/utils/middleware"
)

// CredentialCommands returns commands that prepare operator and test
// credentials. They read config but never touch the ledger.
func CredentialCommands(env *Env) []*cobra.Command {
	return []*cobra.Command{hashTokenCmd(), tokenCmd(env)}
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash for admin.token_hash",
		Long:  `Print the bcrypt hash for admin.token_hash. The token is read from stdin when not given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("token is empty")
			}

			hash, err := middleware.HashAdminToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func tokenCmd(env *Env) *cobra.Command {
	var (
		ttl   time.Duration
		email string
	)

	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Mint an access token signed with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			m, err := jwt.NewManager(jwt.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer})
			if err != nil {
				return err
			}
			token, err := m.GenerateAccessToken(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	return cmd
}
