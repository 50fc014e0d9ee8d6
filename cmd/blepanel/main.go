package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "blepanel",
		Short: "Control a BLE LED and button panel",
		Long: `Bluetooth Low Energy (BLE) command-line tool for an LED/button panel peripheral:

- Scan for nearby named peripherals
- Connect and watch the two button click counters
- Switch the three LEDs on and off
- Serve a WebSocket dashboard for remote control`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		// Silence Cobra's "Error:" prefix - main() prints clean errors
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Config file (default ~/.config/blepanel/config.yaml)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&g.verbose, "verbose", false, "Shortcut for --log-level=debug")
	flags.StringVar(&g.transport, "transport", "", "BLE transport (goble, tinygo)")
	flags.IntVar(&g.apiLevel, "api-level", 0, "Platform API level for the permission model (0 = desktop)")
	flags.StringSliceVar(&g.grants, "grant", nil, "Granted capabilities (scan, connect, bluetooth, bluetooth_admin, fine_location, background_location)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newScanCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))
	rootCmd.AddCommand(newLedCmd(g))
	rootCmd.AddCommand(newServeCmd(g))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
