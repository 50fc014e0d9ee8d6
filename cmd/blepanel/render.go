package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/srg/blepanel/internal/session"
	"github.com/srg/blepanel/scanner"
)

var (
	connectedColor    = color.New(color.FgGreen, color.Bold)
	connectingColor   = color.New(color.FgYellow)
	disconnectedColor = color.New(color.FgRed)
	ledOnColor        = color.New(color.FgGreen, color.Bold)
	ledOffColor       = color.New(color.FgHiBlack)
	counterColor      = color.New(color.FgCyan, color.Bold)
)

func colorState(state session.State) string {
	switch state {
	case session.Connected:
		return connectedColor.Sprint(state)
	case session.Connecting:
		return connectingColor.Sprint(state)
	default:
		return disconnectedColor.Sprint(state)
	}
}

func colorLed(on bool) string {
	if on {
		return ledOnColor.Sprint("on")
	}
	return ledOffColor.Sprint("off")
}

func colorCount(n uint) string {
	return counterColor.Sprint(n)
}

// renderDevicesTable prints devices in discovery order.
func renderDevicesTable(w io.Writer, devices []scanner.PeripheralDescriptor) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		name := d.DisplayName
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\n", name, d.Identifier, d.SignalStrength)
	}
	return tw.Flush()
}

func renderDevicesJSON(w io.Writer, devices []scanner.PeripheralDescriptor) error {
	if devices == nil {
		devices = []scanner.PeripheralDescriptor{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func roleLabel(role session.Role) string {
	switch role {
	case session.RolePrimaryButton:
		return "Primary button"
	case session.RoleSecondaryButton:
		return "Secondary button"
	default:
		return "LED control"
	}
}
