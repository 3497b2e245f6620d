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
	assert.Equal(t, "", cfg.LogLevel)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.Scan.Duration)
	assert.True(t, cfg.Scan.DuplicateFilter)
	assert.Equal(t, 30*time.Second, cfg.Scan.ExpireAfter)
	assert.Equal(t, "environmental", cfg.Monitor.Profile)
	assert.Equal(t, 30*time.Second, cfg.Monitor.ConnectTimeout)
	assert.False(t, cfg.Monitor.ReadRSSI)
	assert.Empty(t, cfg.Server.Listen)
	assert.NoError(t, cfg.Validate(), "defaults MUST validate")
}

func TestParse(t *testing.T) {
	// GOAL: YAML values override defaults while unset keys keep them
	//
	// TEST SCENARIO: partial document → overridden fields changed → others default

	cfg, err := Parse([]byte(`
log_level: debug
scan:
  duration: 3s
  allow: ["c7:95:da:5f:44:8a"]
monitor:
  profile: heart-rate
  rssi: true
server:
  listen: ":8080"
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Scan.Duration)
	assert.True(t, cfg.Scan.DuplicateFilter, "unset key MUST keep its default")
	assert.Equal(t, "heart-rate", cfg.Monitor.Profile)
	assert.True(t, cfg.Monitor.ReadRSSI)
	assert.Equal(t, 30*time.Second, cfg.Monitor.ConnectTimeout)
	assert.Equal(t, ":8080", cfg.Server.Listen)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"C7:95:DA:5F:44:8A"}, cfg.Scan.AllowList, "Validate MUST normalize addresses")
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("scan:\n  durration: 3s\n"))
	assert.Error(t, err, "misspelled keys MUST be rejected")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "table", cfg.OutputFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.OutputFormat = "xml" },
			wantErr: "invalid output format",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "trace2" },
			wantErr: "invalid log level",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.Scan.Duration = -time.Second },
			wantErr: "cannot be negative",
		},
		{
			name:    "malformed allow entry",
			mutate:  func(c *Config) { c.Scan.AllowList = []string{"kitchen"} },
			wantErr: "invalid address",
		},
		{
			name:    "malformed block entry",
			mutate:  func(c *Config) { c.Scan.BlockList = []string{"11:22:33"} },
			wantErr: "invalid address",
		},
		{
			name:    "malformed service",
			mutate:  func(c *Config) { c.Scan.Services = []string{"zz"} },
			wantErr: "scan services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "silent by default", logLevel: "", expected: logrus.PanicLevel},
		{name: "debug", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "info", logLevel: "info", expected: logrus.InfoLevel},
		{name: "warn", logLevel: "WARN", expected: logrus.WarnLevel},
		{name: "error", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "invalid falls back to silent", logLevel: "loud", expected: logrus.PanicLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
