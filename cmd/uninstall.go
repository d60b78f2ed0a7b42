package cmd

import (
	"flexport/internal/autostart"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the transfer daemon and remove its login entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()
		if installed, err := as.IsInstalled(); err != nil {
			return err
		} else if !installed {
			fmt.Println("flexport daemon is not registered")
			return nil
		}

		// Running transfers are failed as interrupted by the daemon itself.
		if err := callDaemon(http.MethodPost, "/stop", nil, nil); err == nil {
			fmt.Println("running daemon stopped")
		}

		location := as.Location()
		if err := as.Uninstall(); err != nil {
			return err
		}

		fmt.Printf("removed %s\n", location)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
