package cmd

import (
	"flexport/internal/autostart"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the transfer daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		// serve exits at once without a usable secret.
		if err := cfg.CheckSecret(); err != nil {
			return err
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		as := autostart.New()
		verb := "registered"
		if installed, _ := as.IsInstalled(); installed {
			verb = "updated"
		}

		if err := as.Install(execPath); err != nil {
			return err
		}

		fmt.Printf("flexport daemon %s: %s\n", verb, as.Location())
		fmt.Printf("api: %s\n", daemonURL("/health"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
