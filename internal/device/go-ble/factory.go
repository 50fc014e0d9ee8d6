package goble

import (
	"github.com/go-ble/ble"
)

// DeviceFactory creates the platform ble.Device for the given adapter (can be overridden in tests).
// adapterID selects the HCI device on linux and is ignored elsewhere.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(adapterID int) (ble.Device, error) {
	return newPlatformDevice(adapterID)
}
