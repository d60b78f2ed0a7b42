package autostart

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const unitFile = serviceName + ".service"

// The daemon runs from ~/.flexport so a relative db_path lands next to the
// config file.
var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Flexport Transfer Daemon
After=network-online.target
Wants=network-online.target

[Service]
WorkingDirectory=%h/.flexport
ExecStart={{.ExecPath}} {{.Arg}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

type LinuxAutoStarter struct{}

func renderUnit(w io.Writer, execPath string) error {
	return unitTemplate.Execute(w, map[string]string{
		"ExecPath": execPath,
		"Arg":      daemonArg,
	})
}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, unitFile), nil
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create service file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := renderUnit(f, execPath); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	return systemctl(true,
		[]string{"daemon-reload"},
		[]string{"enable", "--now", unitFile})
}

func (l *LinuxAutoStarter) Uninstall() error {
	_ = systemctl(false,
		[]string{"disable", "--now", unitFile})

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}

	return systemctl(false, []string{"daemon-reload"})
}

func (l *LinuxAutoStarter) Location() string {
	path, err := l.servicePath()
	if err != nil {
		return unitFile
	}

	return path
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}

// systemctl runs each command against the user manager. Failures are only
// reported when strict is set.
func systemctl(strict bool, cmds ...[]string) error {
	for _, args := range cmds {
		cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil && strict {
			return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
		}
	}

	return nil
}
