package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName names the data directory and default log file.
const AppName = "updater"

type Config struct {
	DataDir string `yaml:"data_dir"`
	Log     struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	UpdateDelayMS     int `yaml:"update_delay_ms"`
	LaunchDelayMS     int `yaml:"launch_delay_ms"`
	AcceptTimeoutMS   int `yaml:"accept_timeout_ms"`
	CallbackTimeoutMS int `yaml:"callback_timeout_ms"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		DataDir:           DataDir(),
		AcceptTimeoutMS:   5000,
		CallbackTimeoutMS: 200,
	}
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3
	return cfg
}

// DataDir returns the per-user updater directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "." // Fallback to current directory
	}
	return filepath.Join(home, "."+AppName)
}

func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// LogPath returns the configured log file, defaulting to updater.log in the data dir.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return ExpandPath(c.Log.File)
	}
	return filepath.Join(ExpandPath(c.DataDir), AppName+".log")
}

// UpdateDelay returns the configured pre-update delay.
func (c *Config) UpdateDelay() time.Duration {
	return millis(c.UpdateDelayMS)
}

// LaunchDelay returns the configured pre-launch delay.
func (c *Config) LaunchDelay() time.Duration {
	return millis(c.LaunchDelayMS)
}

// AcceptTimeout returns how long the parent waits for each callback connection.
func (c *Config) AcceptTimeout() time.Duration {
	return millis(c.AcceptTimeoutMS)
}

// CallbackTimeout returns the dial and read timeout of a single callback message.
func (c *Config) CallbackTimeout() time.Duration {
	return millis(c.CallbackTimeoutMS)
}

func millis(ms int) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path over the defaults. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config as YAML to path.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
