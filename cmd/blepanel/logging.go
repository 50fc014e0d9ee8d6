package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/devicefactory"
	"github.com/srg/blepanel/internal/permission"
	"github.com/srg/blepanel/pkg/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	verbose    bool
	transport  string
	apiLevel   int
	grants     []string
}

// runtime is what a command needs to talk to the radio.
type runtime struct {
	cfg     *config.Config
	logger  *logrus.Logger
	central device.Central
	checker permission.Checker
}

// loadConfig reads the config file and applies the flags the user set on top of it.
func (g *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = g.transport
	}
	if flags.Changed("api-level") {
		cfg.Permissions.APILevel = g.apiLevel
	}
	if flags.Changed("grant") {
		cfg.Permissions.Granted = g.grants
	}
	if err := configureLogLevel(cfg, g.logLevel, g.verbose); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configureLogLevel applies --log-level, or --verbose when no level is given.
func configureLogLevel(cfg *config.Config, level string, verbose bool) error {
	switch level {
	case "":
		if verbose {
			cfg.LogLevel = "debug"
		}
	case "debug", "info", "warn", "error":
		cfg.LogLevel = level
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	return nil
}

// setup builds the runtime for a command. Logs go to the command's stderr.
func (g *globalOptions) setup(cmd *cobra.Command) (*runtime, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	checker, err := cfg.Checker()
	if err != nil {
		return nil, err
	}
	central, err := devicefactory.CentralFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE central: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, central: central, checker: checker}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
