package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/permission"
)

// Supported BLE transports
const (
	TransportGoBLE  = "goble"
	TransportTinyGo = "tinygo"
)

// Config holds application configuration
type Config struct {
	LogLevel         string            `yaml:"log_level" default:"panic"`
	Transport        string            `yaml:"transport" default:"goble"`
	AdapterID        int               `yaml:"adapter_id" default:"0"`
	ScanTimeout      time.Duration     `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration     `yaml:"connect_timeout" default:"30s"`
	DiscoveryTimeout time.Duration     `yaml:"discovery_timeout" default:"30s"`
	Permissions      PermissionsConfig `yaml:"permissions"`
	Web              WebConfig         `yaml:"web"`
}

// PermissionsConfig describes the platform permission model. APILevel 0 is a desktop host.
type PermissionsConfig struct {
	APILevel int      `yaml:"api_level" default:"0"`
	Granted  []string `yaml:"granted"`
}

type WebConfig struct {
	Listen            string        `yaml:"listen" default:"127.0.0.1:8080"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval" default:"0s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultConfigPath returns ~/.config/blepanel/config.yaml, or "" when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blepanel", "config.yaml")
}

// Load reads a YAML config file over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(expandTilde(path))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	switch c.Transport {
	case TransportGoBLE, TransportTinyGo:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportGoBLE, TransportTinyGo, c.Transport)
	}

	if c.AdapterID < 0 {
		return fmt.Errorf("adapter_id must be >= 0, got %d", c.AdapterID)
	}

	for name, d := range map[string]time.Duration{
		"scan_timeout":           c.ScanTimeout,
		"connect_timeout":        c.ConnectTimeout,
		"discovery_timeout":      c.DiscoveryTimeout,
		"web.broadcast_interval": c.Web.BroadcastInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if c.Permissions.APILevel < 0 {
		return fmt.Errorf("permissions.api_level must be >= 0, got %d", c.Permissions.APILevel)
	}
	if _, err := c.capabilities(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level, falling back to panic.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Checker builds the permission checker for the configured platform.
func (c *Config) Checker() (*permission.Static, error) {
	caps, err := c.capabilities()
	if err != nil {
		return nil, err
	}
	return permission.NewStatic(permission.Policy{APILevel: c.Permissions.APILevel}, caps...), nil
}

func (c *Config) capabilities() ([]device.Capability, error) {
	caps := make([]device.Capability, 0, len(c.Permissions.Granted))
	for _, name := range c.Permissions.Granted {
		capability, err := permission.ParseCapability(name)
		if err != nil {
			return nil, fmt.Errorf("permissions.granted: %w", err)
		}
		caps = append(caps, capability)
	}
	return caps, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
