package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func newAdapter(id int) (*bluetooth.Adapter, error) {
	if id != 0 {
		return nil, ErrAdapterInvalidID
	}
	return bluetooth.DefaultAdapter, nil
}

// parseAddress parses a CoreBluetooth peripheral identifier; macOS never exposes MAC addresses.
func parseAddress(address string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: failed to parse peripheral identifier: %s", err)
	}
	return bluetooth.Address{UUID: uuid}, nil
}
