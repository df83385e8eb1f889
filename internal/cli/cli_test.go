package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/updater/internal/callback"
	"github.com/mcdonaldj/updater/internal/config"
	"github.com/mcdonaldj/updater/internal/elevation"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/mocks"
)

// ============================================================================
// Mock implementations for testing
// ============================================================================

// mockConfigService implements ConfigService for testing.
type mockConfigService struct {
	config     *config.Config
	loadErr    error
	saveErr    error
	saved      *config.Config
	configPath string
}

func newMockConfigService(dataDir string) *mockConfigService {
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	return &mockConfigService{
		config:     cfg,
		configPath: filepath.Join(dataDir, "config.yaml"),
	}
}

func (m *mockConfigService) Load() (*config.Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.config, nil
}

func (m *mockConfigService) Save(cfg *config.Config) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = cfg
	return nil
}

func (m *mockConfigService) ConfigPath() string            { return m.configPath }
func (m *mockConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// mockElevation implements task.ElevatedRunner for testing.
type mockElevation struct {
	requests  []elevation.Request
	completed int
	err       error
}

func (m *mockElevation) Run(_ context.Context, req elevation.Request, onProgress func(int)) (int, error) {
	m.requests = append(m.requests, req)
	for i := 1; i <= m.completed; i++ {
		onProgress(i)
	}
	return m.completed, m.err
}

// ============================================================================
// Test helpers
// ============================================================================

type testCLI struct {
	*CLI
	out        *bytes.Buffer
	errOut     *bytes.Buffer
	cfg        *mockConfigService
	launcher   *mocks.MockLauncher
	elevator   *mocks.MockElevator
	elevation  *mockElevation
	exitCode   int
	exitCalled bool
}

func newTestCLI(t *testing.T, args ...string) *testCLI {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	tc := &testCLI{
		out:       out,
		errOut:    errOut,
		cfg:       newMockConfigService(t.TempDir()),
		launcher:  mocks.NewMockLauncher(),
		elevator:  &mocks.MockElevator{},
		elevation: &mockElevation{},
	}

	tc.CLI = NewForTesting(out, errOut, append([]string{"updater"}, args...))
	tc.Exit = func(code int) {
		tc.exitCode = code
		tc.exitCalled = true
	}
	tc.ConfigSvc = tc.cfg
	tc.Launcher = tc.launcher
	tc.Elevator = tc.elevator
	tc.Elevation = tc.elevation
	return tc
}

func (tc *testCLI) run() {
	tc.RunContext(context.Background())
}

func (tc *testCLI) assertExit(t *testing.T, code int) {
	t.Helper()
	assert.True(t, tc.exitCalled, "expected Exit(%d)", code)
	assert.Equal(t, code, tc.exitCode)
}

func (tc *testCLI) assertNoExit(t *testing.T) {
	t.Helper()
	assert.False(t, tc.exitCalled, "Exit should not have been called, stderr=%q", tc.errOut.String())
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// updateFixture returns an archive replacing app.txt and a target holding the old version.
func updateFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	archive := filepath.Join(dir, "update.zip")
	writeArchive(t, archive, map[string]string{
		"app.txt":     "v2",
		"lib/new.txt": "added",
	})

	target := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "app.txt"), []byte("v1"), 0o644))
	return archive, target
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func readOnlyTarget(t *testing.T, target string) {
	t.Helper()
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("requires an unprivileged unix user")
	}
	require.NoError(t, os.Chmod(target, 0o555))
	t.Cleanup(func() { _ = os.Chmod(target, 0o755) })
}

// listenParent opens the callback session an elevated child reports to.
func listenParent(t *testing.T, pending int, acceptTimeout time.Duration) (*callback.Session, <-chan error) {
	t.Helper()
	session, err := callback.Listen(pending, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	session.AcceptTimeout = acceptTimeout

	done := make(chan error, 1)
	go func() { done <- session.Wait(context.Background(), nil) }()
	return session, done
}

// ============================================================================
// Tests
// ============================================================================

func TestVersion(t *testing.T) {
	tc := newTestCLI(t, "-version")
	tc.Version = "1.2.3"
	tc.run()

	assert.Contains(t, tc.out.String(), "Version: 1.2.3")
	assert.Contains(t, tc.out.String(), runtime.GOOS)
	tc.assertNoExit(t)
}

func TestHelpFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no params", nil},
		{"-help flag", []string{"-help"}},
		{"-? flag", []string{"-?"}},
		{"only options", []string{"-log.level", "debug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCLI(t, tt.args...)
			tc.run()

			assert.Contains(t, tc.out.String(), "Usage: updater")
			tc.assertNoExit(t)
		})
	}
}

func TestPrintUsage(t *testing.T) {
	tc := newTestCLI(t)
	tc.PrintUsage()

	for _, want := range []string{"--update", "--launch", "-launch.home", "-stdin", "-log.file.append"} {
		assert.Contains(t, tc.out.String(), want)
	}
}

func TestUnknownFlag(t *testing.T) {
	tc := newTestCLI(t, "-bogus")
	tc.run()

	tc.assertExit(t, 1)
	assert.Contains(t, tc.errOut.String(), "-bogus")
	assert.Contains(t, tc.out.String(), "Usage: updater", "usage follows the error")
}

func TestCLINew(t *testing.T) {
	c := New("1.0.0")

	assert.Equal(t, "1.0.0", c.Version)
	assert.NotNil(t, c.Out)
	assert.NotNil(t, c.Err)
	assert.NotNil(t, c.In)
	assert.NotNil(t, c.Exit)
	assert.NotNil(t, c.green)
	assert.NotNil(t, c.red)
}

func TestInitConfigSuccess(t *testing.T) {
	tc := newTestCLI(t, "-init")
	tc.run()

	tc.assertNoExit(t)
	assert.Contains(t, tc.out.String(), "Created config at")
	assert.Contains(t, tc.out.String(), tc.cfg.configPath)
	assert.NotNil(t, tc.cfg.saved, "default config should be saved")
}

func TestInitConfigSaveError(t *testing.T) {
	tc := newTestCLI(t, "-init")
	tc.cfg.saveErr = errors.New("disk full")
	tc.run()

	tc.assertExit(t, 1)
	assert.Contains(t, tc.errOut.String(), "Error saving config")
}

func TestConfigLoadError(t *testing.T) {
	tc := newTestCLI(t, "-version")
	tc.cfg.loadErr = errors.New("bad yaml")
	tc.run()

	tc.assertExit(t, 1)
	assert.Contains(t, tc.errOut.String(), "Error loading config")
}

func TestUpdateAndLaunch(t *testing.T) {
	archive, target := updateFixture(t)
	home := t.TempDir()

	tc := newTestCLI(t, "--update", archive, target, "--launch", "app", "-x", "-launch.home", home)
	tc.run()

	tc.assertNoExit(t)
	assert.Equal(t, "v2", readFile(t, filepath.Join(target, "app.txt")))
	assert.Equal(t, "added", readFile(t, filepath.Join(target, "lib", "new.txt")))

	require.Len(t, tc.launcher.Started, 1)
	cmd := tc.launcher.Started[0]
	assert.Equal(t, home, cmd.Dir)
	assert.Equal(t, []string{"app", "-x"}, cmd.Args)

	output := tc.out.String()
	assert.Contains(t, output, "1/1")
	assert.Contains(t, output, "Done: 1 updated, 1 launched")
	assert.Empty(t, tc.elevation.requests, "writable target should not elevate")
}

func TestUpdateWritesLogFile(t *testing.T) {
	archive, target := updateFixture(t)
	logFile := filepath.Join(t.TempDir(), "run.log")

	tc := newTestCLI(t, "--update", archive, target, "-log.file", logFile, "-log.level", "debug")
	tc.run()

	tc.assertNoExit(t)
	assert.Contains(t, readFile(t, logFile), "Successful update")
}

func TestUpdateInvalidArchive(t *testing.T) {
	_, target := updateFixture(t)
	bogus := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(bogus, []byte("not a zip"), 0o644))

	tc := newTestCLI(t, "--update", bogus, target, "--launch", "app")
	tc.run()

	tc.assertNoExit(t)
	assert.Equal(t, "v1", readFile(t, filepath.Join(target, "app.txt")), "failed update leaves the target")
	assert.Contains(t, tc.out.String(), "Done: 0 updated, 1 launched, 1 update errors")
	assert.Len(t, tc.launcher.Started, 1, "launch still runs after a task failure")
}

func TestLaunchFailureCounted(t *testing.T) {
	tc := newTestCLI(t, "--launch", "app")
	tc.launcher.Errors["app"] = errors.New("not found")
	tc.run()

	tc.assertNoExit(t)
	assert.Contains(t, tc.out.String(), "Done: 0 updated, 0 launched, 1 launch errors")
}

func TestUpdateOddPairs(t *testing.T) {
	archive, _ := updateFixture(t)

	tc := newTestCLI(t, "--update", archive)
	tc.run()

	tc.assertExit(t, 1)
}

func TestUpdateMissingSource(t *testing.T) {
	_, target := updateFixture(t)

	tc := newTestCLI(t, "--update", filepath.Join(t.TempDir(), "missing.zip"), target)
	tc.run()

	assert.Contains(t, tc.out.String(), "source parameter not found")
}

func TestInvalidDelay(t *testing.T) {
	archive, target := updateFixture(t)

	tc := newTestCLI(t, "-update.delay", "soon", "--update", archive, target)
	tc.run()

	tc.assertExit(t, 1)
	assert.Equal(t, "v1", readFile(t, filepath.Join(target, "app.txt")), "no update should run")
}

func TestStdinParams(t *testing.T) {
	archive, target := updateFixture(t)

	tc := newTestCLI(t, "-stdin")
	tc.In = strings.NewReader(strings.Join([]string{"--update", archive, target, ""}, "\n"))
	tc.run()

	tc.assertNoExit(t)
	assert.Equal(t, "v2", readFile(t, filepath.Join(target, "app.txt")))
}

func TestUpdateNeedsElevation(t *testing.T) {
	archive, target := updateFixture(t)
	readOnlyTarget(t, target)

	tc := newTestCLI(t, "--update", archive, target, "--launch", "app")
	tc.elevation.completed = 1
	tc.run()

	tc.assertNoExit(t)
	require.Len(t, tc.elevation.requests, 1)
	req := tc.elevation.requests[0]
	require.Len(t, req.Pairs, 1)
	assert.Equal(t, target, req.Pairs[0].Target)
	assert.NotEmpty(t, req.Session)
	assert.Contains(t, tc.out.String(), "Done: 1 updated, 1 launched (elevated)")
	assert.Len(t, tc.launcher.Started, 1, "parent launches after the elevated update")
}

func TestUpdateElevatedFailuresNotCountedAsUpdated(t *testing.T) {
	archive, target := updateFixture(t)
	readOnlyTarget(t, target)

	tc := newTestCLI(t, "--update", archive, target)
	tc.elevation.completed = 0
	tc.run()

	tc.assertNoExit(t)
	output := tc.out.String()
	assert.Contains(t, output, "Done: 0 updated, 0 launched, 1 update errors (elevated)")
	assert.Contains(t, output, "1 of 1 updates failed")
}

func TestUpdateElevationFailure(t *testing.T) {
	archive, target := updateFixture(t)
	readOnlyTarget(t, target)

	tc := newTestCLI(t, "--update", archive, target, "--launch", "app")
	tc.elevation.err = errs.Elevation(nil, "denied")
	tc.run()

	tc.assertExit(t, 1)
	assert.Empty(t, tc.launcher.Started, "launch is skipped after elevation failure")
}

func TestElevatedChild(t *testing.T) {
	archive, target := updateFixture(t)
	session, done := listenParent(t, 1, callback.DefaultAcceptTimeout)

	tc := newTestCLI(t,
		"-elevated", "-callback", strconv.Itoa(session.Port), "-session", "abc",
		"--update", archive, target, "--launch", "app")
	tc.run()

	require.NoError(t, <-done)
	assert.Equal(t, 1, session.Completed)
	tc.assertNoExit(t)
	assert.Equal(t, "v2", readFile(t, filepath.Join(target, "app.txt")))
	assert.Empty(t, tc.launcher.Started, "elevated child must not launch")
	assert.NotContains(t, tc.out.String(), "Usage")
	assert.NotContains(t, tc.out.String(), "Done:")
}

func TestElevatedChildIgnoresUpdateDelay(t *testing.T) {
	archive, target := updateFixture(t)
	session, done := listenParent(t, 1, 2*time.Second)

	tc := newTestCLI(t,
		"-elevated", "-callback", strconv.Itoa(session.Port),
		"-update.delay", "6000", "--update", archive, target)
	start := time.Now()
	tc.run()

	require.NoError(t, <-done, "parent must not time out while the child waits")
	assert.Less(t, time.Since(start), 6*time.Second)
	assert.Equal(t, 1, session.Completed)
	assert.Equal(t, "v2", readFile(t, filepath.Join(target, "app.txt")))
}

func TestElevatedChildReportsOnlySuccesses(t *testing.T) {
	_, target := updateFixture(t)
	session, done := listenParent(t, 1, callback.DefaultAcceptTimeout)

	tc := newTestCLI(t,
		"-elevated", "-callback", strconv.Itoa(session.Port),
		"--update", filepath.Join(t.TempDir(), "missing.zip"), target)
	tc.run()

	require.NoError(t, <-done)
	assert.Equal(t, 0, session.Completed, "failed update must not be reported as progress")
	assert.Equal(t, "v1", readFile(t, filepath.Join(target, "app.txt")))
}

func TestLaunchOnlyElevated(t *testing.T) {
	tc := newTestCLI(t, "--launch", "app", "-launch.elevated")
	tc.run()

	tc.assertNoExit(t)
	assert.Equal(t, 1, tc.elevator.ElevateCalls)
	assert.Len(t, tc.launcher.Started, 1)
}

func TestCancelledRun(t *testing.T) {
	archive, target := updateFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tc := newTestCLI(t, "-update.delay", "1000", "--update", archive, target)
	tc.RunContext(ctx)

	tc.assertExit(t, 1)
	assert.Equal(t, "v1", readFile(t, filepath.Join(target, "app.txt")))
}
