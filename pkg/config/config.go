package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ModePerHub = "per_hub"
	ModeShared = "shared"

	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"
)

// StoreConfig selects where hub names are persisted
type StoreConfig struct {
	Driver string `yaml:"driver" default:"yaml"`
	Path   string `yaml:"path" default:"brickd-hubs.yaml"`
}

// Config holds application configuration
type Config struct {
	LogLevel         string        `yaml:"log_level" default:"info"`
	DispatchMode     string        `yaml:"dispatch_mode" default:"per_hub"`
	QueueSize        int           `yaml:"queue_size" default:"100"`
	SharedQueueSize  int           `yaml:"shared_queue_size" default:"20"`
	MinWriteInterval time.Duration `yaml:"min_write_interval" default:"0s"`
	WatchdogTimeout  time.Duration `yaml:"watchdog_timeout" default:"0s"`
	JournalSize      uint32        `yaml:"journal_size" default:"32"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	Store            StoreConfig   `yaml:"store"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration without modifying it
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.DispatchMode {
	case ModePerHub, ModeShared:
	default:
		errs = append(errs, fmt.Errorf("dispatch_mode must be %q or %q, got %q", ModePerHub, ModeShared, c.DispatchMode))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.SharedQueueSize < 1 {
		errs = append(errs, fmt.Errorf("shared_queue_size must be positive, got %d", c.SharedQueueSize))
	}
	if c.MinWriteInterval < 0 {
		errs = append(errs, fmt.Errorf("min_write_interval must not be negative, got %s", c.MinWriteInterval))
	}
	if c.WatchdogTimeout < 0 {
		errs = append(errs, fmt.Errorf("watchdog_timeout must not be negative, got %s", c.WatchdogTimeout))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	switch strings.ToLower(c.Store.Driver) {
	case StoreYAML, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", StoreYAML, StoreSQLite, c.Store.Driver))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}

	return errors.Join(errs...)
}

// ParseLogLevel accepts logrus level names, case-insensitive
func ParseLogLevel(s string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
