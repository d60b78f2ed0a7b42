package autostart

import (
	"fmt"
	"os/exec"
)

const taskName = "FlexportDaemon"

type WindowsAutoStarter struct{}

func taskCommand(execPath string) string {
	return fmt.Sprintf(`"%s" %s`, execPath, daemonArg)
}

// createTaskArgs registers the daemon at logon with the user's own token.
// Downloads land under the user's storage root, so no elevation is requested.
func createTaskArgs(execPath string) []string {
	return []string{"/Create",
		"/TN", taskName,
		"/TR", taskCommand(execPath),
		"/SC", "ONLOGON",
		"/RL", "LIMITED",
		"/F"}
}

func schtasks(args ...string) error {
	out, err := exec.Command("schtasks", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run schtasks %s: %w\n%s", args[0], err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Install(execPath string) error {
	if err := schtasks(createTaskArgs(execPath)...); err != nil {
		return err
	}

	// Start now instead of waiting for the next logon.
	return schtasks("/Run", "/TN", taskName)
}

func (w *WindowsAutoStarter) Uninstall() error {
	_ = schtasks("/End", "/TN", taskName)
	return schtasks("/Delete", "/TN", taskName, "/F")
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	return exec.Command("schtasks", "/Query", "/TN", taskName).Run() == nil, nil
}

func (w *WindowsAutoStarter) Location() string {
	return `Task Scheduler\` + taskName
}
