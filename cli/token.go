package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cppla/hoppin/utils"
)

// NewTokenCmd creates the token command, which mints a development JWT.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.App.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set")
			}

			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.App.TokenTTL
			}
			token, err := utils.GenerateToken(cfg.App.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}

			if jsonMode(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user_id":    args[0],
					"token":      token,
					"expires_at": time.Now().Add(ttl).UTC(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "token lifetime (default app.token_ttl)")
	return cmd
}
