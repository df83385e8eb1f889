package execlauncher

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "UPDATER_LAUNCH_HELPER"

func TestMain(m *testing.M) {
	if out := os.Getenv(helperEnv); out != "" {
		wd, _ := os.Getwd()
		_ = os.WriteFile(out, []byte(wd), 0o644)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestStartLaunchesInWorkDir(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	workDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "wd")

	cmd := exec.Command(exe)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), helperEnv+"="+out)

	require.NoError(t, New().Start(cmd))
	require.NotNil(t, cmd.SysProcAttr)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		if err != nil {
			return false
		}
		got, _ := filepath.EvalSymlinks(string(data))
		want, _ := filepath.EvalSymlinks(workDir)
		return got == want
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartMissingProgram(t *testing.T) {
	cmd := exec.Command(filepath.Join(t.TempDir(), "no-such-app"))
	err := New().Start(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-app")
}
