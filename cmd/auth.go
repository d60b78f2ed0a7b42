package cmd

import (
	"flexport/internal/auth"
	"fmt"
	"os/user"

	"github.com/spf13/cobra"
)

var tokenOwner string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API access",
}

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.CheckSecret(); err != nil {
			return err
		}

		owner := tokenOwner
		if owner == "" {
			u, err := user.Current()
			if err != nil {
				return fmt.Errorf("failed to determine current user: %w", err)
			}
			owner = u.Username
		}

		token, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL).Issue(owner)
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	authTokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "identity the token is issued for (default: current user)")
	authCmd.AddCommand(authTokenCmd)
	rootCmd.AddCommand(authCmd)
}
