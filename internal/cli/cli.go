// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/adapters/execlauncher"
	"github.com/mcdonaldj/updater/internal/callback"
	"github.com/mcdonaldj/updater/internal/config"
	"github.com/mcdonaldj/updater/internal/elevation"
	"github.com/mcdonaldj/updater/internal/errs"
	"github.com/mcdonaldj/updater/internal/logging"
	"github.com/mcdonaldj/updater/internal/params"
	"github.com/mcdonaldj/updater/internal/ports"
	"github.com/mcdonaldj/updater/internal/task"
	"github.com/mcdonaldj/updater/internal/transaction"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	In      io.Reader // Standard input, read when -stdin is given
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc ConfigService
	Launcher  ports.ProcessLauncher
	Elevator  ports.Elevator
	Applier   task.Applier
	Elevation task.ElevatedRunner
	Logger    *log.Logger

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		In:      os.Stdin,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		In:      strings.NewReader(""),
		Version: "test",
		Args:    args,
		Exit:    func(code int) {},
		Logger:  log.New(),
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error) { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() string            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.StandardLogger()
}

func (c *CLI) launcher() ports.ProcessLauncher {
	if c.Launcher != nil {
		return c.Launcher
	}
	return execlauncher.New()
}

func (c *CLI) elevator() ports.Elevator {
	if c.Elevator != nil {
		return c.Elevator
	}
	return elevation.New()
}

func (c *CLI) applier(entry *log.Entry) task.Applier {
	if c.Applier != nil {
		return c.Applier
	}
	return transaction.NewDefaultService(entry.WithField("component", "transaction"))
}

func (c *CLI) elevation(entry *log.Entry, cfg *config.Config, states *elevation.Tracker) task.ElevatedRunner {
	if c.Elevation != nil {
		return c.Elevation
	}
	b := elevation.NewBootstrap(c.elevator(), entry.WithField("component", "elevation"))
	b.AcceptTimeout = cfg.AcceptTimeout()
	b.CallbackTimeout = cfg.CallbackTimeout()
	b.States = states
	return b
}

// Run executes the CLI with the configured arguments until done or interrupted.
func (c *CLI) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.RunContext(ctx)
}

// RunContext executes the CLI with the configured arguments.
func (c *CLI) RunContext(ctx context.Context) {
	var args []string
	if len(c.Args) > 1 {
		args = c.Args[1:]
	}

	p, err := params.Parse(args)
	if err == nil && p.IsTrue(params.Stdin) {
		p, err = params.ParseReader(c.In)
	}
	if err != nil {
		fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
		c.PrintUsage()
		c.Exit(1)
		return
	}

	cfgSvc := c.configSvc()
	cfg, err := cfgSvc.Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return
	}

	elevated := p.IsTrue(params.Elevated)
	if !elevated {
		c.PrintHeader()
		switch {
		case p.Len() == 0 || p.IsTrue(params.Help) || p.IsTrue(params.What):
			c.PrintUsage()
			return
		case p.IsTrue(params.Version):
			c.PrintVersion()
			return
		case p.IsTrue(params.Init):
			c.InitConfig()
			return
		case !p.IsSet(params.Update) && !p.IsSet(params.Launch):
			c.PrintUsage()
			return
		}
	}

	logFile := cfg.LogPath()
	if p.IsSet(params.LogFile) {
		logFile = config.ExpandPath(p.Get(params.LogFile))
	}
	logLevel := cfg.Log.Level
	if p.IsSet(params.LogLevel) {
		logLevel = p.Get(params.LogLevel)
	}

	logger := c.logger()
	closer, err := logging.Init(logger, logging.Options{
		Level:      logLevel,
		File:       logFile,
		Append:     p.IsTrue(params.LogFileAppend),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    c.Err,
	})
	defer func() { _ = closer.Close() }()
	if err != nil {
		fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
		c.Exit(1)
		return
	}

	session := p.Get(params.Session)
	if session == "" {
		session = uuid.NewString()
	}
	entry := log.NewEntry(logger).WithField("session", session)

	opts := task.Options{
		Elevated: elevated,
		LogFile:  logFile,
		LogLevel: logLevel,
		Session:  session,
	}
	if opts.UpdateDelay, err = p.Millis(params.UpdateDelay, cfg.UpdateDelay()); err == nil {
		opts.LaunchDelay, err = p.Millis(params.LaunchDelay, cfg.LaunchDelay())
	}
	if err != nil {
		c.fail(entry, err)
		return
	}

	updates, launches, err := c.tasks(p, entry)
	if err != nil {
		c.fail(entry, err)
		return
	}

	runner := task.NewRunner(opts, entry)
	runner.Elevation = c.elevation(entry, cfg, runner.States)
	if elevated && p.IsSet(params.Callback) {
		port, err := p.Int(params.Callback, 0)
		if err != nil {
			c.fail(entry, err)
			return
		}
		entry.Infof("Callback on port: %d", port)
		runner.Notifier = callback.NewClient(port, cfg.CallbackTimeout())
	}
	if !elevated {
		runner.OnProgress = func(completed, total int) {
			fmt.Fprintf(c.Out, "  %s %d/%d\n", c.cyan("=>"), completed, total)
		}
	}

	summary, err := runner.Run(ctx, updates, launches)
	if !elevated {
		c.printSummary(summary)
	}
	if err != nil {
		c.fail(entry, err)
		return
	}
}

// tasks builds the update and launch tasks requested by p.
func (c *CLI) tasks(p *params.Params, entry *log.Entry) ([]*task.UpdateTask, []*task.LaunchTask, error) {
	var updates []*task.UpdateTask
	if p.IsSet(params.Update) {
		pairs, err := p.Pairs()
		if err != nil {
			return nil, nil, err
		}
		applier := c.applier(entry)
		for _, pair := range pairs {
			updates = append(updates, task.NewUpdateTask(pair.Source, pair.Target, applier))
		}
	}

	var launches []*task.LaunchTask
	if p.IsSet(params.Launch) && !p.IsTrue(params.Elevated) {
		argv := p.Values(params.Launch)
		if len(argv) == 0 {
			return nil, nil, errs.Argument("%s requires a command", params.Launch)
		}
		dir := ""
		if p.IsSet(params.LaunchHome) {
			dir = config.ExpandPath(p.Get(params.LaunchHome))
		}
		launches = append(launches, task.NewLaunchTask(
			argv, dir, p.IsTrue(params.LaunchElevated),
			c.launcher(), c.elevator(), entry.WithField("component", "launch"),
		))
	}

	return updates, launches, nil
}

func (c *CLI) fail(entry *log.Entry, err error) {
	entry.Error(err)
	fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
	c.Exit(1)
}

func (c *CLI) printSummary(s task.Summary) {
	if len(s.Failed) > 0 {
		fmt.Fprintln(c.Out)
		for _, f := range s.Failed {
			fmt.Fprintf(c.Out, "  %s %s: %v\n", c.red("x"), f.Task, f.Err)
		}
	}

	fmt.Fprintln(c.Out)
	fmt.Fprintf(c.Out, "Done: %s updated, %s launched",
		c.green(fmt.Sprintf("%d", s.Updated)),
		c.gray(fmt.Sprintf("%d", s.Launched)))
	if n := len(s.Failures(task.KindUpdate)); n > 0 {
		fmt.Fprintf(c.Out, ", %s update errors", c.red(fmt.Sprintf("%d", n)))
	}
	if n := len(s.Failures(task.KindLaunch)); n > 0 {
		fmt.Fprintf(c.Out, ", %s launch errors", c.red(fmt.Sprintf("%d", n)))
	}
	if s.ViaElevation {
		fmt.Fprintf(c.Out, " %s", c.yellow("(elevated)"))
	}
	fmt.Fprintln(c.Out)
}

// PrintHeader prints the program banner.
func (c *CLI) PrintHeader() {
	fmt.Fprintln(c.Out, c.gray(strings.Repeat("-", 60)))
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("updater"), c.Version)
	fmt.Fprintln(c.Out)
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `Usage: updater [<option>...]

Commands:
  --update <source target>...
    Update folders in pairs of two using the first as the source zip archive
    and the second as the target folder. If the launch parameter is specified
    then the launch command is executed after the updates have been processed.
  --launch <command>... [-launch.home <folder>] [-launch.elevated]
    Start the command after updating, optionally in the given folder and with
    elevated privileges.

Options:
  -help, -?              Show help information.
  -version               Show version information only.
  -init                  Create default config file.
  -update.delay <ms>     Wait before updating.
  -launch.delay <ms>     Wait before launching.
  -stdin                 Read all parameters from stdin, one per line.

  -log.level <level>     Change the output log level. Levels are:
                         none, panic, fatal, error, warn, info, debug, trace, all
  -log.file <file>       Output log messages to the specified file.
  -log.file.append       Append to the log file instead of starting a new one.

Config: ~/.updater/config.yaml`)
}

// PrintVersion prints version and platform information.
func (c *CLI) PrintVersion() {
	fmt.Fprintf(c.Out, "Version: %s\n", c.Version)
	fmt.Fprintf(c.Out, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(c.Out, "OS name: %s  arch: %s\n", runtime.GOOS, runtime.GOARCH)
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	svc := c.configSvc()
	cfg := svc.DefaultConfig()
	if err := svc.Save(cfg); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", svc.ConfigPath())
}
