package driver

import (
	"context"
	"flexport/internal/model"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// LinkDriver pulls plain HTTP(S) URLs. Connection parameters are ignored.
type LinkDriver struct {
	opts   Options
	client *http.Client
}

func NewLinkDriver(opts Options) *LinkDriver {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.DialTimeout}).DialContext

	return &LinkDriver{
		opts:   opts,
		client: &http.Client{Transport: transport},
	}
}

func (d *LinkDriver) Kind() model.SessionKind {
	return model.KindLink
}

// LinkName derives the local file name for a URL.
func LinkName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}

	if name := path.Base(u.Path); localName(name) {
		return name
	}
	if host := u.Hostname(); localName(host) {
		return host
	}

	return "download"
}

func (d *LinkDriver) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %w", ErrProtocol, rawURL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, rawURL, err)
	}

	if err := statusError(rawURL, resp.StatusCode); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

func statusError(rawURL string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: %s: %s", ErrNotFound, rawURL, http.StatusText(code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", ErrAuth, rawURL, http.StatusText(code))
	default:
		return fmt.Errorf("%w: %s: unexpected status %d", ErrProtocol, rawURL, code)
	}
}

// List issues a HEAD request and describes the linked resource as one entry.
func (d *LinkDriver) List(ctx context.Context, _ Connection, rawURL string) ([]model.RemoteEntry, error) {
	resp, err := d.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()

	entry := model.RemoteEntry{
		Name: LinkName(rawURL),
		Type: model.EntryFile,
		Size: max(resp.ContentLength, 0),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			entry.ModTime = &t
		}
	}

	return []model.RemoteEntry{entry}, nil
}

func (d *LinkDriver) Download(ctx context.Context, _ Connection, rawURL, localPath string, progress ProgressFunc) error {
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, LinkName(rawURL))
	}

	var total int64
	return fetchSingle(ctx, localPath, func() (io.ReadCloser, error) {
		resp, err := d.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			return nil, err
		}
		total = max(resp.ContentLength, 0)
		return resp.Body, nil
	}, d.opts.buffer(), newMeter(0, func(done, _ int64) {
		if progress != nil {
			progress(done, total)
		}
	}))
}
