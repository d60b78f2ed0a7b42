package cmd

import (
	"flexport/internal/driver"

	"github.com/spf13/cobra"
)

type remoteFlags struct {
	driver.Connection
}

func (f *remoteFlags) register(cmd *cobra.Command, defaultPort int) {
	cmd.Flags().StringVar(&f.Host, "host", "", "remote host")
	cmd.Flags().IntVar(&f.Port, "port", defaultPort, "remote port")
	cmd.Flags().StringVarP(&f.Username, "user", "u", "anonymous", "remote username")
	cmd.Flags().StringVarP(&f.Password, "password", "p", "", "remote password")
	_ = cmd.MarkFlagRequired("host")
}

type remoteBody struct {
	driver.Connection
	Path       string `json:"path,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`
	LocalPath  string `json:"local_path,omitempty"`
}
