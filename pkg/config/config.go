package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:""`
	OutputFormat string        `yaml:"output_format" default:"table"`
	Scan         ScanConfig    `yaml:"scan"`
	Monitor      MonitorConfig `yaml:"monitor"`
	Server       ServerConfig  `yaml:"server"`
}

type ScanConfig struct {
	Duration        time.Duration `yaml:"duration" default:"10s"`
	DuplicateFilter bool          `yaml:"duplicate_filter" default:"true"`
	Services        []string      `yaml:"services"`
	AllowList       []string      `yaml:"allow"`
	BlockList       []string      `yaml:"block"`
	ExpireAfter     time.Duration `yaml:"expire_after" default:"30s"`
}

type MonitorConfig struct {
	Profile         string        `yaml:"profile" default:"environmental"`
	Characteristics []string      `yaml:"characteristics"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"30s"`
	ReadRSSI        bool          `yaml:"rssi" default:"false"`
	Forget          bool          `yaml:"forget" default:"false"`
}

// ServerConfig configures the reading server. An empty Listen disables it.
type ServerConfig struct {
	Listen string `yaml:"listen" default:""`
}

var validFormats = []string{"table", "json"}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks values that the YAML decoder cannot, and normalizes
// addresses and UUIDs in place.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	valid := false
	for _, f := range validFormats {
		if c.OutputFormat == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid output format '%s': must be one of %v", c.OutputFormat, validFormats)
	}

	if c.Scan.Duration < 0 {
		return fmt.Errorf("scan duration cannot be negative")
	}
	if c.Monitor.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout cannot be negative")
	}

	for _, list := range [][]string{c.Scan.AllowList, c.Scan.BlockList} {
		for i, addr := range list {
			normalized, err := device.NormalizeAddress(addr)
			if err != nil {
				return fmt.Errorf("scan address list: %w", err)
			}
			list[i] = normalized
		}
	}

	if len(c.Scan.Services) > 0 {
		services, err := device.ValidateUUID(c.Scan.Services...)
		if err != nil {
			return fmt.Errorf("scan services: %w", err)
		}
		c.Scan.Services = services
	}
	return nil
}

// Level parses LogLevel. An empty level keeps logging silent.
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := c.Level()
	if err != nil {
		level = logrus.PanicLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
