package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/bledb"
	"github.com/srg/blepanel/internal/device"
)

// BLEPeripheral is a live go-ble client connection.
type BLEPeripheral struct {
	address string
	client  ble.Client
	logger  *logrus.Logger
}

func newPeripheral(address string, client ble.Client, logger *logrus.Logger) *BLEPeripheral {
	return &BLEPeripheral{address: address, client: client, logger: logger}
}

func (p *BLEPeripheral) Address() string { return p.address }

// Disconnected is closed by go-ble when the link drops.
func (p *BLEPeripheral) Disconnected() <-chan struct{} {
	return p.client.Disconnected()
}

func (p *BLEPeripheral) Disconnect() error {
	return NormalizeError(p.client.CancelConnection())
}

// DiscoverServices discovers the full GATT profile. go-ble discovery is not cancellable,
// so ctx only bounds how long the caller waits for it.
func (p *BLEPeripheral) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		profile, err := p.client.DiscoverProfile(true)
		done <- result{profile, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, NormalizeError(ctx.Err()))
	case res = <-done:
	}
	if res.err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": p.address,
			"error":   res.err,
		}).Error("Failed to discover profile")
		return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, NormalizeError(res.err))
	}
	if res.profile == nil {
		return nil, fmt.Errorf("%w: empty profile", device.ErrServiceDiscoveryFailed)
	}

	services := make([]device.Service, 0, len(res.profile.Services))
	for _, bleSvc := range res.profile.Services {
		svc := &BLEService{uuid: bleSvc.UUID.String()}
		p.logger.WithFields(logrus.Fields{
			"service_uuid": svc.uuid,
			"name":         bledb.LookupService(svc.uuid),
		}).Debug("Found service UUID")

		for _, bleChar := range bleSvc.Characteristics {
			char := &BLECharacteristic{char: bleChar, client: p.client}
			p.logger.WithFields(logrus.Fields{
				"service_uuid": svc.uuid,
				"char_uuid":    char.UUID(),
				"name":         bledb.LookupCharacteristic(char.UUID()),
			}).Debug("Found characteristic UUID")
			svc.chars = append(svc.chars, char)
		}
		services = append(services, svc)
	}

	p.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"services": len(services),
	}).Debug("Profile discovered successfully")
	return services, nil
}

// BLEService is a discovered go-ble service.
type BLEService struct {
	uuid  string
	chars []device.Characteristic
}

func (s *BLEService) UUID() string                             { return s.uuid }
func (s *BLEService) Characteristics() []device.Characteristic { return s.chars }

// BLECharacteristic wraps a go-ble characteristic together with the client that owns it.
type BLECharacteristic struct {
	char   *ble.Characteristic
	client ble.Client
}

func (c *BLECharacteristic) UUID() string { return c.char.UUID.String() }

// Subscribe enables notifications (not indications) on the characteristic.
func (c *BLECharacteristic) Subscribe(handler func([]byte)) error {
	return NormalizeError(c.client.Subscribe(c.char, false, handler))
}

// Write performs a write-with-response so failures are reported by the peripheral.
func (c *BLECharacteristic) Write(data []byte) error {
	if err := c.client.WriteCharacteristic(c.char, data, false); err != nil {
		return fmt.Errorf("%w: %w", device.ErrWriteFailed, NormalizeError(err))
	}
	return nil
}

var (
	_ device.Peripheral     = (*BLEPeripheral)(nil)
	_ device.Service        = (*BLEService)(nil)
	_ device.Characteristic = (*BLECharacteristic)(nil)
)
