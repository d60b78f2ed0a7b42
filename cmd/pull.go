package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	pullFTPFlags  remoteFlags
	pullSFTPFlags remoteFlags
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Start a transfer into local storage",
}

func pullRemote(route string, flags *remoteFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		local, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("invalid local path: %w", err)
		}

		var result struct {
			SessionID string `json:"session_id"`
		}
		body := remoteBody{
			Connection: flags.Connection,
			RemotePath: args[0],
			LocalPath:  local,
		}
		if err := callDaemon(http.MethodPost, route, body, &result); err != nil {
			return err
		}

		fmt.Printf("transfer queued: session=%s src=%s dst=%s\n", result.SessionID, args[0], local)
		return nil
	}
}

var pullFTPCmd = &cobra.Command{
	Use:   "ftp [remote] [local]",
	Short: "Download a file or directory over FTP",
	Args:  cobra.ExactArgs(2),
	RunE:  pullRemote("/ftp/download", &pullFTPFlags),
}

var pullSFTPCmd = &cobra.Command{
	Use:   "sftp [remote] [local]",
	Short: "Download a file or directory over SFTP",
	Args:  cobra.ExactArgs(2),
	RunE:  pullRemote("/sftp/download", &pullSFTPFlags),
}

var pullLinkCmd = &cobra.Command{
	Use:   "link [dest-dir] [url...]",
	Short: "Download one or more HTTP(S) links into a directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid destination: %w", err)
		}

		var result struct {
			Accepted   bool     `json:"accepted"`
			SessionIDs []string `json:"session_ids"`
		}
		body := map[string]any{"links": args[1:], "path": dest}
		if err := callDaemon(http.MethodPost, "/links_upload", body, &result); err != nil {
			return err
		}

		for i, id := range result.SessionIDs {
			fmt.Printf("transfer queued: session=%s src=%s\n", id, args[i+1])
		}
		return nil
	},
}

func init() {
	pullFTPFlags.register(pullFTPCmd, 21)
	pullSFTPFlags.register(pullSFTPCmd, 22)
	pullCmd.AddCommand(pullFTPCmd, pullSFTPCmd, pullLinkCmd)
	rootCmd.AddCommand(pullCmd)
}
