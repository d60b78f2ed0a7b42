package cmd

import (
	"flexport/internal/model"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View running transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Transfers []model.TransferSnapshot `json:"transfers"`
		}
		if err := callDaemon(http.MethodGet, "/status", nil, &result); err != nil {
			return err
		}

		if len(result.Transfers) == 0 {
			fmt.Println("no running transfers")
			return nil
		}

		fmt.Printf("%-36s %-5s %-30s %-30s %-5s %s\n",
			"SESSION", "TYPE", "SRC", "DST", "PCT", "BYTES")

		for _, snap := range result.Transfers {
			bytes := fmt.Sprintf("%d", snap.BytesDone)
			if snap.BytesTotal > 0 {
				bytes = fmt.Sprintf("%d/%d", snap.BytesDone, snap.BytesTotal)
			}

			fmt.Printf("%-36s %-5s %-30s %-30s %-5s %s\n",
				snap.SessionID, snap.Kind, snap.Source, snap.Destination,
				fmt.Sprintf("%d%%", snap.Progress), bytes)
			fmt.Printf("%-36s running for %s\n", "", time.Since(snap.StartedAt).Round(time.Second))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
