package driver

import (
	"context"
	"errors"
	"flexport/internal/model"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/jlaffaye/ftp"
)

// ftpConn is the subset of *ftp.ServerConn used by the driver.
type ftpConn interface {
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	FileSize(path string) (int64, error)
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

type FTPDriver struct {
	opts Options
	dial func(ctx context.Context, conn Connection) (ftpConn, error)
}

func NewFTPDriver(opts Options) *FTPDriver {
	d := &FTPDriver{opts: opts}
	d.dial = d.dialServer
	return d
}

func (d *FTPDriver) Kind() model.SessionKind {
	return model.KindFTP
}

func (d *FTPDriver) dialServer(ctx context.Context, conn Connection) (ftpConn, error) {
	addr := conn.addr(21)
	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(d.opts.DialTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, addr, err)
	}

	if err := c.Login(conn.Username, conn.Password); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("%w: ftp login as %s: %w", ErrAuth, conn.Username, err)
	}

	return serverConn{c}, nil
}

func (d *FTPDriver) List(ctx context.Context, conn Connection, remotePath string) ([]model.RemoteEntry, error) {
	c, err := d.dial(ctx, conn)
	if err != nil {
		return nil, err
	}

	defer func(c ftpConn) {
		_ = c.Quit()
	}(c)

	return listFTP(c, remotePath)
}

func listFTP(c ftpConn, dir string) ([]model.RemoteEntry, error) {
	entries, err := c.List(dir)
	if err != nil {
		return nil, ftpError(dir, err)
	}

	out := make([]model.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}

		entry := model.RemoteEntry{
			Name: path.Base(e.Name),
			Type: model.EntryFile,
			Size: int64(e.Size),
		}
		if e.Type == ftp.EntryTypeFolder {
			entry.Type = model.EntryDirectory
			entry.Size = 0
		}
		if !e.Time.IsZero() {
			entry.ModTime = new(e.Time)
		}
		out = append(out, entry)
	}

	slices.SortStableFunc(out, func(a, b model.RemoteEntry) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	return out, nil
}

// Download fetches a single file, or mirrors a directory into
// localPath/<basename> when remotePath turns out to be one.
func (d *FTPDriver) Download(ctx context.Context, conn Connection, remotePath, localPath string, progress ProgressFunc) error {
	c, err := d.dial(ctx, conn)
	if err != nil {
		return err
	}

	defer func(c ftpConn) {
		_ = c.Quit()
	}(c)

	isDir, err := isFTPDir(c, remotePath)
	if err != nil {
		return err
	}

	open := func(p string) (io.ReadCloser, error) {
		r, err := c.Retr(p)
		if err != nil {
			return nil, ftpError(p, err)
		}
		return r, nil
	}

	if isDir {
		steps, total, err := walkTree(ctx, remotePath, func(dir string) ([]model.RemoteEntry, error) {
			return listFTP(c, dir)
		}, d.opts.IgnoreList)
		if err != nil {
			return err
		}

		localRoot := localPath
		if name, err := remoteBase(remotePath); err == nil {
			localRoot = filepath.Join(localPath, name)
		}
		return mirrorTree(ctx, localRoot, steps, total, func(rel string) (io.ReadCloser, error) {
			return open(path.Join(remotePath, rel))
		}, d.opts.buffer(), progress)
	}

	total, err := c.FileSize(remotePath)
	if err != nil {
		if ferr := ftpError(remotePath, err); errors.Is(ferr, ErrNotFound) {
			return ferr
		}
		total = 0
	}

	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		name, err := remoteBase(remotePath)
		if err != nil {
			return err
		}
		localPath = filepath.Join(localPath, name)
	}

	return fetchSingle(ctx, localPath, func() (io.ReadCloser, error) {
		return open(remotePath)
	}, d.opts.buffer(), newMeter(total, progress))
}

func isFTPDir(c ftpConn, p string) (bool, error) {
	cwd, err := c.CurrentDir()
	if err != nil {
		return false, ftpError(p, err)
	}

	if err := c.ChangeDir(p); err != nil {
		return false, nil
	}

	if err := c.ChangeDir(cwd); err != nil {
		return true, ftpError(cwd, err)
	}

	return true, nil
}

func ftpError(p string, err error) error {
	if tpErr, ok := errors.AsType[*textproto.Error](err); ok {
		switch tpErr.Code {
		case 430, 530:
			return fmt.Errorf("%w: %s: %w", ErrAuth, p, err)
		case 450, 550, 553:
			return fmt.Errorf("%w: %s: %w", ErrNotFound, p, err)
		default:
			return fmt.Errorf("%w: %s: %w", ErrProtocol, p, err)
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrConnection, p, err)
}
