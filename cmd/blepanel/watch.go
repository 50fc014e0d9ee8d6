package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/session"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "watch <address>",
		Short: "Connect and stream button clicks",
		Long: `Connect to the panel and print connection state changes and button click
counters as they are notified, until Ctrl+C or until the device disconnects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, args[0], timeout)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Connection timeout (default from config connect_timeout)")
	return cmd
}

// newSession creates a session using the configured timeouts; a changed --timeout flag overrides the connect timeout.
func newSession(cmd *cobra.Command, rt *runtime, timeout time.Duration) *session.Session {
	opts := session.DefaultOptions()
	opts.ConnectTimeout = rt.cfg.ConnectTimeout
	opts.DiscoveryTimeout = rt.cfg.DiscoveryTimeout
	if cmd.Flags().Changed("timeout") {
		opts.ConnectTimeout = timeout
	}
	return session.New(rt.central, rt.checker, opts, rt.logger)
}

func runWatch(cmd *cobra.Command, g *globalOptions, address string, timeout time.Duration) error {
	rt, err := g.setup(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	sess := newSession(cmd, rt, timeout)
	defer sess.Close()
	events := sess.Subscribe()

	out := cmd.OutOrStdout()
	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "connecting", 0)
	progress.Start()
	defer progress.Stop()

	sess.Connect(address)
	for {
		select {
		case <-ctx.Done():
			progress.Stop()
			fmt.Fprintln(out, "Disconnecting...")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case ev, ok := <-events.C():
			if !ok {
				return nil
			}
			if ev.Type == session.EventStateChanged && ev.State == session.Connected {
				progress.Stop()
			}
			if err := printWatchEvent(out, ev); err != nil {
				progress.Stop()
				return err
			}
		}
	}
}

// printWatchEvent prints ev; it returns an error when watching cannot continue.
func printWatchEvent(out io.Writer, ev session.Event) error {
	switch ev.Type {
	case session.EventStateChanged:
		fmt.Fprintf(out, "State: %s\n", colorState(ev.State))
	case session.EventServicesDiscovered:
		fmt.Fprintln(out, "Services discovered")
	case session.EventNotificationsEnabled:
		labels := make([]string, len(ev.Roles))
		for i, role := range ev.Roles {
			labels[i] = roleLabel(role)
		}
		if len(labels) == 0 {
			fmt.Fprintln(out, "No button notifications available")
		} else {
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", strings.Join(labels, " and "))
		}
	case session.EventCounterChanged:
		fmt.Fprintf(out, "%s clicks: %s\n", roleLabel(ev.Role), colorCount(ev.Value))
	case session.EventError:
		switch {
		case errors.Is(ev.Err, device.ErrTransportDisconnected):
			return fmt.Errorf("%w: %w", ErrConnectionLost, ev.Err)
		case ev.State == session.Disconnected, errors.Is(ev.Err, device.ErrPermissionDenied):
			return ev.Err
		default:
			fmt.Fprintf(out, "Warning: %s\n", FormatUserError(ev.Err))
		}
	}
	return nil
}
