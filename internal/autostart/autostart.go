// Package autostart registers the flexport daemon to start at login.
package autostart

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	serviceName = "flexport"
	daemonArg   = "serve"
)

var ErrUnsupported = errors.New("autostart is not supported on this platform")

// AutoStarter registers `flexport serve` with the platform's per-user service
// manager. Location names the unit file or task it manages.
type AutoStarter interface {
	Install(execPath string) error
	Uninstall() error
	IsInstalled() (bool, error)
	Location() string
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return unsupported(runtime.GOOS)
	}
}

type unsupported string

func (u unsupported) err() error {
	return fmt.Errorf("%w: %s", ErrUnsupported, string(u))
}

func (u unsupported) Install(_ string) error {
	return u.err()
}

func (u unsupported) Uninstall() error {
	return u.err()
}

func (u unsupported) IsInstalled() (bool, error) {
	return false, nil
}

func (u unsupported) Location() string {
	return ""
}
