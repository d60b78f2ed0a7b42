package cmd

import (
	"flexport/internal/model"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage transfer sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your transfer sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Sessions []model.Session `json:"sessions"`
		}
		if err := callDaemon(http.MethodGet, "/sessions", nil, &result); err != nil {
			return err
		}

		if len(result.Sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}

		fmt.Printf("%-36s %-5s %-10s %-4s %-20s %-20s %s\n",
			"SESSION", "TYPE", "STATUS", "PCT", "STARTED", "COMPLETED", "NAME")
		for _, s := range result.Sessions {
			completed := s.CompletedAt
			if completed == "" {
				completed = "-"
			}
			fmt.Printf("%-36s %-5s %-10s %-4d %-20s %-20s %s\n",
				s.ID, s.Kind, s.Status, s.Progress, s.StartedAt, completed, s.SourceLabel)
			if s.Detail != "" {
				fmt.Printf("%-36s %s\n", "", s.Detail)
			}
		}

		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a session, stopping its transfer if running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := callDaemon(http.MethodDelete, "/sessions/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}

		fmt.Printf("session %s deleted\n", args[0])
		return nil
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a running transfer and keep its session as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := callDaemon(http.MethodPost, "/sessions/"+url.PathEscape(args[0])+"/cancel", nil, nil); err != nil {
			return err
		}

		fmt.Printf("session %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeleteCmd, sessionsCancelCmd)
	rootCmd.AddCommand(sessionsCmd)
}
