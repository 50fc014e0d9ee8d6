package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/device"
)

// Central implements device.Central on top of a go-ble device.
// The platform device is created lazily on first use and shared by scan and dial.
type Central struct {
	adapterID int
	logger    *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewCentral creates a go-ble central for the given adapter.
func NewCentral(adapterID int, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{adapterID: adapterID, logger: logger}
}

func (c *Central) device() (ble.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return c.dev, nil
	}

	dev, err := DeviceFactory(c.adapterID)
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	c.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement.
// Cancellation of ctx ends the scan without an error.
func (c *Central) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := c.device()
	if err != nil {
		return err
	}

	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}

	err = dev.Scan(ctx, false, bleHandler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral at address.
func (c *Central) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	dev, err := c.device()
	if err != nil {
		return nil, err
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	return newPeripheral(address, client, c.logger), nil
}

var _ device.Central = (*Central)(nil)
