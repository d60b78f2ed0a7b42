package driver

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("authentication failed")
	ErrConnection = errors.New("connection failed")
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("local i/o error")
	ErrProtocol   = errors.New("protocol error")
	// ErrCancelled marks a transfer stopped because its session was
	// cancelled or deleted while it ran.
	ErrCancelled = errors.New("transfer cancelled")
)

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func localIO(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, path, err)
}
