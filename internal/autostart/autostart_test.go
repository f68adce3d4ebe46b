package autostart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("serve")
	require.NoError(t, err)
	assert.Equal(t, RoleServe, role)

	_, err = ParseRole("sync")
	assert.Error(t, err)
}

func TestLinuxUnit(t *testing.T) {
	l := &LinuxAutoStarter{role: RoleWatch}

	var sb strings.Builder
	require.NoError(t, l.writeUnit(&sb, "/usr/local/bin/relaysync", []string{"--config", "/etc/relay sync.yaml"}))

	unit := sb.String()
	assert.Contains(t, unit, "[Service]\n")
	assert.Contains(t, unit, `ExecStart=/usr/local/bin/relaysync watch --config "/etc/relay sync.yaml"`)
	assert.Equal(t, "relaysync-watch.service", l.unitName())
}

func TestWindowsCommand(t *testing.T) {
	w := &WindowsAutoStarter{role: RoleServe}

	assert.Equal(t, `"C:\relaysync.exe" serve "--config" "C:\cfg.yaml"`,
		w.command(`C:\relaysync.exe`, []string{"--config", `C:\cfg.yaml`}))
	assert.Equal(t, "RelaySync-serve", w.taskName())
}
