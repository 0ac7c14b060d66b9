package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ModePerHub, cfg.DispatchMode)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 20, cfg.SharedQueueSize)
	assert.Equal(t, time.Duration(0), cfg.MinWriteInterval)
	assert.Equal(t, time.Duration(0), cfg.WatchdogTimeout, "watchdog MUST be disabled by default")
	assert.Equal(t, uint32(32), cfg.JournalSize)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, StoreYAML, cfg.Store.Driver)
	assert.Equal(t, "brickd-hubs.yaml", cfg.Store.Path)
	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestLoad_MissingFileMeansDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brickd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
dispatch_mode: shared
min_write_interval: 20ms
watchdog_timeout: 2s
store:
  driver: sqlite
  path: /var/lib/brickd/hubs.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ModeShared, cfg.DispatchMode)
	assert.Equal(t, 20*time.Millisecond, cfg.MinWriteInterval)
	assert.Equal(t, 2*time.Second, cfg.WatchdogTimeout)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/brickd/hubs.db", cfg.Store.Path)
	assert.Equal(t, 100, cfg.QueueSize, "unset fields MUST keep their defaults")
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "malformed yaml", content: "queue_size: [", errMsg: "failed to parse config"},
		{name: "unknown mode", content: "dispatch_mode: broadcast", errMsg: "dispatch_mode"},
		{name: "zero queue", content: "queue_size: 0", errMsg: "queue_size must be positive"},
		{name: "bad log level", content: "log_level: chatty", errMsg: "invalid log level"},
		{name: "unknown driver", content: "store:\n  driver: etcd", errMsg: "store.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "brickd.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 0
	cfg.WatchdogTimeout = -time.Second
	cfg.Store.Path = " "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_size")
	assert.Contains(t, err.Error(), "watchdog_timeout")
	assert.Contains(t, err.Error(), "store.path")

	assert.Equal(t, 0, cfg.QueueSize, "Validate MUST NOT modify the config")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", want: logrus.ErrorLevel},
		{name: "falls back to info on invalid level", logLevel: "nope", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
