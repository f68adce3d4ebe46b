package autostart

import (
	"fmt"
	"os/exec"
	"strings"
)

type WindowsAutoStarter struct {
	role Role
}

func (w *WindowsAutoStarter) taskName() string {
	return "RelaySync-" + string(w.role)
}

func (w *WindowsAutoStarter) command(execPath string, args []string) string {
	parts := []string{fmt.Sprintf(`"%s"`, execPath), string(w.role)}
	for _, a := range args {
		parts = append(parts, fmt.Sprintf(`"%s"`, a))
	}

	return strings.Join(parts, " ")
}

func (w *WindowsAutoStarter) Install(execPath string, args []string) error {
	cmd := exec.Command("schtasks", "/create",
		"/TN", w.taskName(),
		"/TR", w.command(execPath, args),
		"/SC", "ONLOGON",
		"/RL", "HIGHEST",
		"/F")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	cmd := exec.Command("schtasks", "/DELETE", "/TN", w.taskName(), "/F")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	cmd := exec.Command("schtasks", "/Query", "/TN", w.taskName())
	if err := cmd.Run(); err != nil {
		return false, nil
	}

	return true, nil
}
