//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newPlatformDevice(adapterID int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(adapterID))
}
