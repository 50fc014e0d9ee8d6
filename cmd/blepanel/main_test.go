package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/pkg/config"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{
			"permission with missing grants",
			&device.PermissionError{Operation: "scan", Missing: []device.Capability{device.CapScan, device.CapFineLocation}},
			"permission denied for scan: missing scan, fine_location. Grant it with --grant scan,fine_location and try again",
		},
		{"bare permission", fmt.Errorf("wrapped: %w", device.ErrPermissionDenied), "permission denied. Grant the required permissions and try again"},
		{"bluetooth off", device.ErrBluetoothOff, "Bluetooth is turned off. Turn it on and try again"},
		{"discovery", fmt.Errorf("%w: gatt error", device.ErrServiceDiscoveryFailed), "could not discover the device's services. Reconnect and try again"},
		{"timeout", context.DeadlineExceeded, "operation timed out. Make sure the device is powered and in range, then try again"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestConfigureLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, configureLogLevel(cfg, "", false))
	assert.Equal(t, "panic", cfg.LogLevel, "no flags MUST keep the configured level")

	require.NoError(t, configureLogLevel(cfg, "", true))
	assert.Equal(t, "debug", cfg.LogLevel)

	require.NoError(t, configureLogLevel(cfg, "warn", true))
	assert.Equal(t, "warn", cfg.LogLevel, "--log-level MUST win over --verbose")

	err := configureLogLevel(cfg, "trace", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level: trace")
}

func TestProgressPrinterSilentWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "Scanning", "starting", time.Second)
	p.Start()
	p.SetPhase("3 found")
	p.Stop()
	p.Stop()

	assert.Empty(t, buf.String(), "progress MUST NOT be written to a non-terminal")
}

func TestRootCmdVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "blepanel version dev (commit none, built unknown)")
}
