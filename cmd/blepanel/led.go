package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/session"
)

func newLedCmd(g *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "led <address> <index> <on|off>",
		Short: "Switch one LED on or off",
		Long: `Connect to the panel, switch LED <index> (0, 1 or 2) on or off, and disconnect.`,
		Example: `  blepanel led aa:bb:cc:dd:ee:ff 1 on
  blepanel led aa:bb:cc:dd:ee:ff 0 off`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, on, err := parseLedArgs(args[1], args[2])
			if err != nil {
				return err
			}
			return runLed(cmd, g, args[0], index, on, timeout)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Connection timeout (default from config connect_timeout)")
	return cmd
}

func parseLedArgs(indexArg, stateArg string) (int, bool, error) {
	index, err := strconv.Atoi(indexArg)
	if err != nil || index < 0 || index >= session.LedCount {
		return 0, false, fmt.Errorf("invalid LED index '%s': must be 0..%d", indexArg, session.LedCount-1)
	}
	switch strings.ToLower(stateArg) {
	case "on", "true", "1":
		return index, true, nil
	case "off", "false", "0":
		return index, false, nil
	default:
		return 0, false, fmt.Errorf("invalid LED state '%s': must be on or off", stateArg)
	}
}

func runLed(cmd *cobra.Command, g *globalOptions, address string, index int, on bool, timeout time.Duration) error {
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

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "connecting", 0)
	progress.Start()
	defer progress.Stop()

	sess.Connect(address)
	sent := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events.C():
			if !ok {
				return ErrConnectionLost
			}
			switch ev.Type {
			case session.EventStateChanged:
				progress.SetPhase(ev.State.String())
			case session.EventServicesDiscovered:
				if !sent {
					progress.SetPhase("writing")
					sess.SetLed(index, on)
					sent = true
				}
			case session.EventWriteCompleted:
				progress.Stop()
				fmt.Fprintf(cmd.OutOrStdout(), "LED %d: %s (command 0x%02x)\n", ev.LedIndex, colorLed(ev.LedOn), ev.Command)
				sess.Disconnect()
				return nil
			case session.EventError:
				if errors.Is(ev.Err, device.ErrTransportDisconnected) {
					return fmt.Errorf("%w: %w", ErrConnectionLost, ev.Err)
				}
				return ev.Err
			}
		}
	}
}
