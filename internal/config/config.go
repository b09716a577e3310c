// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable
// strings. Supports formats like "200ms", "5s", "1m30s", or integer
// milliseconds. A value of "0" or 0 means disabled.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Integer milliseconds for convenience
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '200ms', '5s', '1m30s' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the configuration for tether and tetherd.
// Loaded from ~/.config/tether/tether.toml
type Config struct {
	Display  DisplayConfig  `toml:"display"`
	Worker   WorkerConfig   `toml:"worker"`
	Behavior BehaviorConfig `toml:"behavior"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DisplayConfig contains display connection settings.
type DisplayConfig struct {
	// Backend forces a display backend: "wayland", "x11" or "headless".
	// Empty means auto-detect from the session environment.
	Backend string `toml:"backend"`
}

// WorkerConfig contains settings for background workers owned by dependent
// resources.
type WorkerConfig struct {
	PollInterval      Duration `toml:"poll_interval"`       // Clipboard service poll cadence
	JoinTimeout       Duration `toml:"join_timeout"`        // Max wait for a worker to exit on stop
	StopRetryInterval Duration `toml:"stop_retry_interval"` // Backoff between repeated stop signals
	StopMaxRetries    int      `toml:"stop_max_retries"`    // Stop signal attempts before joining one last time
}

// BehaviorConfig contains application lifecycle settings.
type BehaviorConfig struct {
	AutoClose       Duration `toml:"auto_close"`       // Close automatically after this long (0 = never)
	ShutdownTimeout Duration `toml:"shutdown_timeout"` // Overall teardown budget
	WindowTitle     string   `toml:"window_title"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// Default configuration values.
const (
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultJoinTimeout       = 5 * time.Second
	DefaultStopRetryInterval = 100 * time.Millisecond
	DefaultStopMaxRetries    = 5
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultWindowTitle       = "tether"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{
			Backend: "",
		},
		Worker: WorkerConfig{
			PollInterval:      Duration(DefaultPollInterval),
			JoinTimeout:       Duration(DefaultJoinTimeout),
			StopRetryInterval: Duration(DefaultStopRetryInterval),
			StopMaxRetries:    DefaultStopMaxRetries,
		},
		Behavior: BehaviorConfig{
			AutoClose:       0,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			WindowTitle:     DefaultWindowTitle,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "tether", "tether.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LogLevel maps the configured level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
