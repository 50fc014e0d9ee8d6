package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blepanel/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the peripheral dropped the link while a command was running.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders err for the terminal. Known failures get a hint on how to retry.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var permErr *device.PermissionError
	switch {
	case errors.As(err, &permErr):
		missing := make([]string, len(permErr.Missing))
		for i, c := range permErr.Missing {
			missing[i] = string(c)
		}
		return fmt.Sprintf("permission denied for %s: missing %s. Grant it with --grant %s and try again",
			permErr.Operation, strings.Join(missing, ", "), strings.Join(missing, ","))
	case errors.Is(err, device.ErrPermissionDenied):
		return "permission denied. Grant the required permissions and try again"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again"
	case errors.Is(err, device.ErrScannerUnavailable):
		return fmt.Sprintf("BLE scanner is unavailable (%v). Check the Bluetooth adapter and try again", err)
	case errors.Is(err, ErrConnectionLost), errors.Is(err, device.ErrTransportDisconnected):
		return fmt.Sprintf("connection to the device failed or was lost (%v). Move closer and try again", err)
	case errors.Is(err, device.ErrServiceDiscoveryFailed):
		return "could not discover the device's services. Reconnect and try again"
	case errors.Is(err, device.ErrCharacteristicUnresolved):
		return "the device does not expose the LED control characteristic. Is it the right device?"
	case errors.Is(err, device.ErrWriteFailed):
		return fmt.Sprintf("the device rejected the LED command (%v). Try again", err)
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "operation timed out. Make sure the device is powered and in range, then try again"
	default:
		return err.Error()
	}
}
