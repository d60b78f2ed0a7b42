// Package driver implements listing and downloading for each remote protocol
// a transfer session can pull from.
package driver

import (
	"context"
	"flexport/internal/model"
	"net"
	"strconv"
	"time"
)

const DefaultChunkSize = 64 * 1024

// ProgressFunc receives the bytes written so far and the expected total.
// A total of 0 means the size is unknown.
type ProgressFunc func(done, total int64)

// Connection holds the parameters needed to reach an FTP or SFTP server.
type Connection struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Connection) addr(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type Driver interface {
	Kind() model.SessionKind
	List(ctx context.Context, conn Connection, remotePath string) ([]model.RemoteEntry, error)
	Download(ctx context.Context, conn Connection, remotePath, localPath string, progress ProgressFunc) error
}

type Options struct {
	ChunkSize   int
	DialTimeout time.Duration
	IgnoreList  []string
	KnownHosts  string
}

func (o Options) buffer() []byte {
	size := o.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	return make([]byte, size)
}
