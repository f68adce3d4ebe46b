package autostart

import (
	"fmt"
	"runtime"
)

// Role is the relaysync command a registered service runs.
type Role string

const (
	RoleWatch Role = "watch"
	RoleServe Role = "serve"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleWatch, RoleServe:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q, want watch or serve", s)
	}
}

type AutoStarter interface {
	Install(execPath string, args []string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New(role Role) AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{role: role}
	case "linux":
		return &LinuxAutoStarter{role: role}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ string, _ []string) error {
	return fmt.Errorf("autostart is not supported on %s", runtime.GOOS)
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
