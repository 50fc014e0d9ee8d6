package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blepanel/scanner"
)

type scanOptions struct {
	duration  time.Duration
	format    string
	allowList []string
	blockList []string
}

var validScanFormats = []string{"table", "json"}

func newScanCmd(g *globalOptions) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for named Bluetooth Low Energy devices in the vicinity.

Each device is listed once, in the order it was first seen, with the signal
strength of that first sighting. Devices that do not advertise a name are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration, 0 scans until Ctrl+C (default from config scan_timeout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVar(&opts.allowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&opts.blockList, "block", nil, "Hide devices with these addresses")
	return cmd
}

func runScan(cmd *cobra.Command, g *globalOptions, opts *scanOptions) error {
	if !slices.Contains(validScanFormats, opts.format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", opts.format, validScanFormats)
	}

	rt, err := g.setup(cmd)
	if err != nil {
		return err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := rt.cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration = opts.duration
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	registry := scanner.NewRegistry(rt.central, rt.checker, &scanner.Options{
		Duration:  duration,
		AllowList: opts.allowList,
		BlockList: opts.blockList,
	}, rt.logger)
	defer registry.Close()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration)
	progress.Start()
	defer progress.Stop()

	if err := registry.StartScan(ctx); err != nil {
		return err
	}

	var scanErr error
	events := registry.Events()
	for done := false; !done; {
		ev, ok := events.Receive()
		if !ok {
			break
		}
		switch ev.Type {
		case scanner.EventDiscovered:
			progress.SetPhase(fmt.Sprintf("%d found", registry.Len()))
		case scanner.EventScannerUnavailable, scanner.EventScanFailed:
			scanErr = ev.Err
		case scanner.EventScanStopped:
			done = true
		}
	}
	progress.Stop()

	if scanErr != nil {
		return scanErr
	}

	devices := registry.Devices()
	if opts.format == "json" {
		return renderDevicesJSON(cmd.OutOrStdout(), devices)
	}
	return renderDevicesTable(cmd.OutOrStdout(), devices)
}
