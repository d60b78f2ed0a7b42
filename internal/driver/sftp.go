package driver

import (
	"context"
	"errors"
	"flexport/internal/model"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type sftpSession struct {
	*sftp.Client
	conn io.Closer
}

// Close shuts the transport before the client, since Client.Close waits for
// its receive loop and that loop only ends once the transport is gone.
func (s *sftpSession) Close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	_ = s.Client.Close()
	return err
}

type SFTPDriver struct {
	opts Options
	dial func(ctx context.Context, conn Connection) (*sftpSession, error)
}

func NewSFTPDriver(opts Options) *SFTPDriver {
	d := &SFTPDriver{opts: opts}
	d.dial = d.dialSSH
	return d
}

func (d *SFTPDriver) Kind() model.SessionKind {
	return model.KindSFTP
}

func (d *SFTPDriver) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	cb, err := knownhosts.New(d.opts.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}

	return cb, nil
}

func (d *SFTPDriver) dialSSH(ctx context.Context, conn Connection) (*sftpSession, error) {
	hostKeys, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	addr := conn.addr(22)
	dialer := net.Dialer{Timeout: d.opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, addr, err)
	}

	cfg := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(conn.Password)},
		HostKeyCallback: hostKeys,
		Timeout:         d.opts.DialTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		_ = raw.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: ssh login as %s: %w", ErrAuth, conn.Username, err)
		}
		return nil, fmt.Errorf("%w: ssh handshake with %s: %w", ErrConnection, addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: starting sftp subsystem: %w", ErrProtocol, err)
	}

	return &sftpSession{Client: sc, conn: client}, nil
}

func sftpError(p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, p, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", ErrAuth, p, err)
	}

	if _, ok := errors.AsType[*sftp.StatusError](err); ok {
		return fmt.Errorf("%w: %s: %w", ErrProtocol, p, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrConnection, p, err)
}

func (d *SFTPDriver) List(ctx context.Context, conn Connection, remotePath string) ([]model.RemoteEntry, error) {
	s, err := d.dial(ctx, conn)
	if err != nil {
		return nil, err
	}

	defer func(s *sftpSession) {
		_ = s.Close()
	}(s)

	return listSFTP(s.Client, remotePath)
}

func listSFTP(c *sftp.Client, dir string) ([]model.RemoteEntry, error) {
	infos, err := c.ReadDir(dir)
	if err != nil {
		return nil, sftpError(dir, err)
	}

	out := make([]model.RemoteEntry, 0, len(infos))
	for _, info := range infos {
		entry := model.RemoteEntry{
			Name:        info.Name(),
			Type:        model.EntryFile,
			Size:        info.Size(),
			ModTime:     new(info.ModTime()),
			Permissions: fmt.Sprintf("%#o", info.Mode().Perm()),
		}
		if info.IsDir() {
			entry.Type = model.EntryDirectory
			entry.Size = 0
		}
		out = append(out, entry)
	}

	slices.SortFunc(out, func(a, b model.RemoteEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

// Download mirrors a remote directory into localPath, or fetches a single file
// to localPath (or into it, when localPath is an existing directory).
func (d *SFTPDriver) Download(ctx context.Context, conn Connection, remotePath, localPath string, progress ProgressFunc) error {
	s, err := d.dial(ctx, conn)
	if err != nil {
		return err
	}

	defer func(s *sftpSession) {
		_ = s.Close()
	}(s)

	info, err := s.Stat(remotePath)
	if err != nil {
		return sftpError(remotePath, err)
	}

	open := func(p string) (io.ReadCloser, error) {
		f, err := s.Open(p)
		if err != nil {
			return nil, sftpError(p, err)
		}
		return f, nil
	}

	if info.IsDir() {
		steps, total, err := walkTree(ctx, remotePath, func(dir string) ([]model.RemoteEntry, error) {
			return listSFTP(s.Client, dir)
		}, d.opts.IgnoreList)
		if err != nil {
			return err
		}

		return mirrorTree(ctx, localPath, steps, total, func(rel string) (io.ReadCloser, error) {
			return open(path.Join(remotePath, rel))
		}, d.opts.buffer(), progress)
	}

	if local, err := os.Stat(localPath); err == nil && local.IsDir() {
		name, err := remoteBase(remotePath)
		if err != nil {
			return err
		}
		localPath = filepath.Join(localPath, name)
	}

	return fetchSingle(ctx, localPath, func() (io.ReadCloser, error) {
		return open(remotePath)
	}, d.opts.buffer(), newMeter(info.Size(), progress))
}
