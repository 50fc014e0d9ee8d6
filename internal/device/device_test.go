package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChar struct{ uuid string }

func (c stubChar) UUID() string                  { return c.uuid }
func (c stubChar) Subscribe(func([]byte)) error { return nil }
func (c stubChar) Write([]byte) error           { return nil }

type stubService struct {
	uuid  string
	chars []Characteristic
}

func (s stubService) UUID() string                      { return s.uuid }
func (s stubService) Characteristics() []Characteristic { return s.chars }

func TestPermissionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("connect: %w", &PermissionError{Operation: "connect", Missing: []Capability{CapConnect}})

	assert.ErrorIs(t, err, ErrPermissionDenied, "PermissionError MUST match ErrPermissionDenied")
	assert.NotErrorIs(t, err, ErrScannerUnavailable)

	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []Capability{CapConnect}, perr.Missing)
	assert.Equal(t, "connect: permission denied: connect requires connect", err.Error())
}

func TestBluetoothOffIsScannerUnavailable(t *testing.T) {
	err := fmt.Errorf("%w: radio", ErrBluetoothOff)
	assert.ErrorIs(t, err, ErrScannerUnavailable, "radio off MUST be reported as scanner unavailable")
	assert.ErrorIs(t, err, ErrBluetoothOff)
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name       string
		err        *NotFoundError
		msg        string
		unresolved bool
	}{
		{name: "bare", err: &NotFoundError{Resource: "service"}, msg: "service not found"},
		{name: "single", err: &NotFoundError{Resource: "service", UUIDs: []string{"1803"}}, msg: `service "1803" not found`},
		{name: "nested", err: &NotFoundError{Resource: "characteristic", UUIDs: []string{"1803", "2a01"}}, msg: `characteristic "2a01" not found in service "1803"`, unresolved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.Equal(t, tt.unresolved, errors.Is(tt.err, ErrCharacteristicUnresolved))
		})
	}
}

func TestFindCharacteristic(t *testing.T) {
	led := stubChar{uuid: CharLedUUID}
	primary := stubChar{uuid: "2A01"}
	secondary := stubChar{uuid: CharSecondaryButtonUUID}

	services := []Service{
		stubService{uuid: "1800", chars: []Characteristic{stubChar{uuid: "2a00"}}},
		stubService{uuid: ServiceButtonPrimaryUUID, chars: []Characteristic{primary}},
		stubService{uuid: "1804", chars: []Characteristic{secondary, led}},
	}

	got, err := FindCharacteristic(services, ServiceButtonPrimaryUUID, CharPrimaryButtonUUID)
	require.NoError(t, err)
	assert.Equal(t, primary, got)

	got, err = FindCharacteristic(services, "0x1804", "2a00")
	require.NoError(t, err)
	assert.Equal(t, led, got, "lookup MUST be scoped to the requested service")

	got, err = FindCharacteristic(services, "", CharLedUUID)
	require.NoError(t, err)
	assert.Equal(t, stubChar{uuid: "2a00"}, got, "unscoped lookup MUST return the first match in discovery order")

	_, err = FindCharacteristic(services, ServiceButtonPrimaryUUID, CharSecondaryButtonUUID)
	assert.ErrorIs(t, err, ErrCharacteristicUnresolved)
	assert.EqualError(t, err, `characteristic "2a02" not found in service "1803"`)
}
