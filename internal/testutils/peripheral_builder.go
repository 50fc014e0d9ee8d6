package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srg/blepanel/internal/device"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a characteristic in a mocked profile
type CharacteristicConfig struct {
	UUID string `json:"uuid"`
}

// ServiceConfig represents a service in a mocked profile
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// ProfileConfig represents the complete GATT profile of a mocked peripheral
type ProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// MockCharacteristic is a testify mock of device.Characteristic.
// Expectations: On("Subscribe") and On("Write", []byte{...}).
type MockCharacteristic struct {
	mock.Mock
	uuid string

	mu      sync.Mutex
	handler func([]byte)
}

func NewMockCharacteristic(uuid string) *MockCharacteristic {
	return &MockCharacteristic{uuid: uuid}
}

func (c *MockCharacteristic) UUID() string { return c.uuid }

func (c *MockCharacteristic) Subscribe(handler func([]byte)) error {
	err := c.Called().Error(0)
	if err == nil {
		c.mu.Lock()
		c.handler = handler
		c.mu.Unlock()
	}
	return err
}

func (c *MockCharacteristic) Write(data []byte) error {
	return c.Called(data).Error(0)
}

// Notify delivers a value-change notification. Returns false when nobody subscribed.
func (c *MockCharacteristic) Notify(data []byte) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a notification handler is registered.
func (c *MockCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

type fakeService struct {
	uuid  string
	chars []device.Characteristic
}

func (s *fakeService) UUID() string                             { return s.uuid }
func (s *fakeService) Characteristics() []device.Characteristic { return s.chars }

// FakePeripheral is a scriptable device.Peripheral.
type FakePeripheral struct {
	address  string
	services []device.Service

	mu           sync.Mutex
	discoverErr  error
	discoverGate chan struct{}

	closeOnce   sync.Once
	closed      chan struct{}
	disconnects atomic.Int32
	discoveries atomic.Int32
}

func (p *FakePeripheral) Address() string               { return p.address }
func (p *FakePeripheral) Disconnected() <-chan struct{} { return p.closed }

func (p *FakePeripheral) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	p.discoveries.Add(1)

	p.mu.Lock()
	gate, err := p.discoverGate, p.discoverErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return p.services, nil
}

func (p *FakePeripheral) Disconnect() error {
	p.disconnects.Add(1)
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// DropLink simulates an unsolicited disconnection from the peripheral side.
func (p *FakePeripheral) DropLink() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// FailDiscovery makes subsequent discoveries fail with err.
func (p *FakePeripheral) FailDiscovery(err error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoverErr = err
	return p
}

// HoldDiscovery blocks discovery until the returned release function is called.
func (p *FakePeripheral) HoldDiscovery() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.discoverGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Disconnects returns how many times Disconnect was called.
func (p *FakePeripheral) Disconnects() int { return int(p.disconnects.Load()) }

// Discoveries returns how many times DiscoverServices was called.
func (p *FakePeripheral) Discoveries() int { return int(p.discoveries.Load()) }

// Characteristic returns the mock for charUUID in serviceUUID; it panics when absent.
func (p *FakePeripheral) Characteristic(serviceUUID, charUUID string) *MockCharacteristic {
	c, err := device.FindCharacteristic(p.services, serviceUUID, charUUID)
	if err != nil {
		panic(err)
	}
	return c.(*MockCharacteristic)
}

// PeripheralBuilder builds fake peripherals with a full service/characteristic profile
type PeripheralBuilder struct {
	address string
	profile ProfileConfig
}

// NewPeripheralBuilder creates a new peripheral builder
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{address: address}
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{UUID: uuid})
	return b
}

// FromJSON fills the profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var config ProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// Build creates the fake peripheral.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{address: b.address, closed: make(chan struct{})}
	for _, svcCfg := range b.profile.Services {
		svc := &fakeService{uuid: svcCfg.UUID}
		for _, charCfg := range svcCfg.Characteristics {
			svc.chars = append(svc.chars, NewMockCharacteristic(charCfg.UUID))
		}
		p.services = append(p.services, svc)
	}
	return p
}
