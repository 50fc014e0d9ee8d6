package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/bledb"
	"github.com/srg/blepanel/internal/device"
	"tinygo.org/x/bluetooth"
)

// Peripheral is a live tinygo connection.
type Peripheral struct {
	address string
	dev     bluetooth.Device
	logger  *logrus.Logger

	once   sync.Once
	closed chan struct{}
}

func newPeripheral(address string, dev bluetooth.Device, logger *logrus.Logger) *Peripheral {
	return &Peripheral{
		address: address,
		dev:     dev,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

func (p *Peripheral) Address() string               { return p.address }
func (p *Peripheral) Disconnected() <-chan struct{} { return p.closed }

func (p *Peripheral) markDisconnected() {
	p.once.Do(func() { close(p.closed) })
}

func (p *Peripheral) Disconnect() error {
	err := p.dev.Disconnect()
	p.markDisconnected()
	return NormalizeError(err)
}

// DiscoverServices enumerates every service and characteristic on the peripheral.
func (p *Peripheral) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	type result struct {
		services []device.Service
		err      error
	}
	done := make(chan result, 1)
	go func() {
		services, err := p.discover()
		done <- result{services, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, NormalizeError(ctx.Err()))
	case res := <-done:
		return res.services, res.err
	}
}

func (p *Peripheral) discover() ([]device.Service, error) {
	tgServices, err := p.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, NormalizeError(err))
	}

	services := make([]device.Service, 0, len(tgServices))
	for _, tgSvc := range tgServices {
		svc := &Service{uuid: tgSvc.UUID().String()}
		p.logger.WithFields(logrus.Fields{
			"service_uuid": svc.uuid,
			"name":         bledb.LookupService(svc.uuid),
		}).Debug("Found service UUID")

		chars, err := tgSvc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, NormalizeError(err))
		}
		for i := range chars {
			char := &Characteristic{char: chars[i]}
			p.logger.WithFields(logrus.Fields{
				"service_uuid": svc.uuid,
				"char_uuid":    char.UUID(),
				"name":         bledb.LookupCharacteristic(char.UUID()),
			}).Debug("Found characteristic UUID")
			svc.chars = append(svc.chars, char)
		}
		services = append(services, svc)
	}
	return services, nil
}

// Service is a discovered tinygo service.
type Service struct {
	uuid  string
	chars []device.Characteristic
}

func (s *Service) UUID() string                             { return s.uuid }
func (s *Service) Characteristics() []device.Characteristic { return s.chars }

// Characteristic wraps a tinygo device characteristic.
type Characteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *Characteristic) UUID() string { return c.char.UUID().String() }

func (c *Characteristic) Subscribe(handler func([]byte)) error {
	return NormalizeError(c.char.EnableNotifications(handler))
}

func (c *Characteristic) Write(data []byte) error {
	if _, err := c.char.Write(data); err != nil {
		return fmt.Errorf("%w: %w", device.ErrWriteFailed, NormalizeError(err))
	}
	return nil
}

var (
	_ device.Peripheral     = (*Peripheral)(nil)
	_ device.Service        = (*Service)(nil)
	_ device.Characteristic = (*Characteristic)(nil)
)
