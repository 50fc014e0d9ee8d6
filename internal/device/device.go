package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is reports a missing characteristic as an unresolved one.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrCharacteristicUnresolved && e.Resource == "characteristic"
}

// Capability is a platform-granted BLE permission.
type Capability string

const (
	CapScan               Capability = "scan"
	CapConnect            Capability = "connect"
	CapBluetooth          Capability = "bluetooth"
	CapBluetoothAdmin     Capability = "bluetooth_admin"
	CapFineLocation       Capability = "fine_location"
	CapBackgroundLocation Capability = "background_location"
)

// PermissionError reports the capabilities an operation needed but did not have.
type PermissionError struct {
	Operation string
	Missing   []Capability
}

func (e *PermissionError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("permission denied: %s", e.Operation)
	}
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return fmt.Sprintf("permission denied: %s requires %s", e.Operation, strings.Join(names, ", "))
}

// Is allows errors.Is(err, ErrPermissionDenied) for any PermissionError
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Error taxonomy. None of these is fatal; callers observe them as events.
var (
	ErrPermissionDenied         = errors.New("permission denied")
	ErrScannerUnavailable       = errors.New("scanner unavailable")
	ErrServiceDiscoveryFailed   = errors.New("service discovery failed")
	ErrCharacteristicUnresolved = errors.New("characteristic unresolved")
	ErrWriteFailed              = errors.New("write failed")
	ErrTransportDisconnected    = errors.New("transport disconnected")
)

// Transport errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrBluetoothOff = fmt.Errorf("%w: bluetooth is turned off", ErrScannerUnavailable)
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
)

// Advertisement is a single discovery report.
type Advertisement interface {
	LocalName() string
	RSSI() int
	Addr() string
}

// Characteristic is a resolved GATT characteristic handle.
type Characteristic interface {
	UUID() string
	// Subscribe enables value-change notifications; handler runs on the transport's delivery context.
	Subscribe(handler func([]byte)) error
	Write(data []byte) error
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Peripheral is a live transport connection to one remote device.
type Peripheral interface {
	Address() string
	DiscoverServices(ctx context.Context) ([]Service, error)
	// Disconnected is closed when the link drops, for whatever reason.
	Disconnected() <-chan struct{}
	Disconnect() error
}

// Central is the local adapter acting in the BLE central role.
type Central interface {
	// Scan delivers advertisements to handler until ctx is done.
	Scan(ctx context.Context, handler func(Advertisement)) error
	Dial(ctx context.Context, address string) (Peripheral, error)
}

// FindCharacteristic returns the characteristic with charUUID inside the service with serviceUUID.
// An empty serviceUUID searches every service in discovery order.
func FindCharacteristic(services []Service, serviceUUID, charUUID string) (Characteristic, error) {
	wantSvc := NormalizeUUID(serviceUUID)
	wantChar := NormalizeUUID(charUUID)

	for _, svc := range services {
		if wantSvc != "" && NormalizeUUID(svc.UUID()) != wantSvc {
			continue
		}
		for _, c := range svc.Characteristics() {
			if NormalizeUUID(c.UUID()) == wantChar {
				return c, nil
			}
		}
	}

	if wantSvc == "" {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{wantChar}}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{wantSvc, wantChar}}
}
