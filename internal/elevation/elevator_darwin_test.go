//go:build darwin

package elevation

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDarwinElevatorScript(t *testing.T) {
	e := &DarwinElevator{geteuid: func() int { return 501 }, getenv: func(string) string { return "" }}

	got, err := e.Elevate(exec.Command("/Applications/My App/updater", "--update", `it's "here"`))
	require.NoError(t, err)

	require.Len(t, got.Args, 3)
	assert.Equal(t, "/usr/bin/osascript", got.Path)
	assert.Equal(t,
		`do shell script "'/Applications/My App/updater' '--update' 'it'\\''s \"here\"'" with administrator privileges`,
		got.Args[2])
	assert.False(t, e.ForwardsStdin())
}
