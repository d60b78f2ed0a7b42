package cmd

import (
	"flexport/internal/model"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	lsFTPFlags  remoteFlags
	lsSFTPFlags remoteFlags
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a remote directory or link",
}

func printEntries(entries []model.RemoteEntry) {
	if len(entries) == 0 {
		fmt.Println("empty")
		return
	}

	fmt.Printf("%-9s %-12s %-20s %s\n", "TYPE", "SIZE", "MODIFIED", "NAME")
	for _, e := range entries {
		modified := "-"
		if e.ModTime != nil {
			modified = e.ModTime.Local().Format(model.TimeLayout)
		}
		fmt.Printf("%-9s %-12d %-20s %s\n", e.Type, e.Size, modified, e.Name)
	}
}

func listRemote(route string, flags *remoteFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}

		var result struct {
			Files []model.RemoteEntry `json:"files"`
		}
		body := remoteBody{Connection: flags.Connection, Path: path}
		if err := callDaemon(http.MethodPost, route, body, &result); err != nil {
			return err
		}

		printEntries(result.Files)
		return nil
	}
}

var lsFTPCmd = &cobra.Command{
	Use:   "ftp [path]",
	Short: "List an FTP directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listRemote("/ftp/list-files", &lsFTPFlags),
}

var lsSFTPCmd = &cobra.Command{
	Use:   "sftp [path]",
	Short: "List an SFTP directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listRemote("/sftp/list-files", &lsSFTPFlags),
}

var lsLinkCmd = &cobra.Command{
	Use:   "link [url]",
	Short: "Show what an HTTP(S) link points to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Files []model.RemoteEntry `json:"files"`
		}
		if err := callDaemon(http.MethodPost, "/links/list", map[string]string{"url": args[0]}, &result); err != nil {
			return err
		}

		printEntries(result.Files)
		return nil
	},
}

func init() {
	lsFTPFlags.register(lsFTPCmd, 21)
	lsSFTPFlags.register(lsSFTPCmd, 22)
	lsCmd.AddCommand(lsFTPCmd, lsSFTPCmd, lsLinkCmd)
	rootCmd.AddCommand(lsCmd)
}
