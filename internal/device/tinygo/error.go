package tinygo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blepanel/internal/device"
)

var ErrAdapterInvalidID = errors.New("the bluetooth adapter ID is invalid on this platform")

// NormalizeError maps tinygo/bluetooth and BlueZ error strings to the device error taxonomy.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "dbus") && strings.HasSuffix(msg, "no such file or directory"):
		return fmt.Errorf("%w: %v", device.ErrScannerUnavailable, err)
	case strings.Contains(msg, "org.bluez was not provided"):
		return fmt.Errorf("%w: %v", device.ErrScannerUnavailable, err)
	case strings.Contains(msg, "not powered"), strings.Contains(msg, "powered off"), strings.Contains(msg, "turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case strings.Contains(msg, "notauthorized"), strings.Contains(msg, "not authorized"), strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", device.ErrPermissionDenied, err)
	case strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return err
	}
}
