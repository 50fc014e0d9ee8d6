package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDevice struct {
	mock.Mock
	ble.Device
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a.String())
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

type mockClient struct {
	mock.Mock
	ble.Client
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.Called().Get(0).(chan struct{})
}

type fakeAdv struct {
	ble.Advertisement
	name string
	rssi int
	addr string
}

func (a fakeAdv) LocalName() string { return a.name }
func (a fakeAdv) RSSI() int         { return a.rssi }
func (a fakeAdv) Addr() ble.Addr    { return ble.NewAddr(a.addr) }

func withDevice(t *testing.T, dev ble.Device, err error) {
	t.Helper()
	orig := DeviceFactory
	DeviceFactory = func(int) (ble.Device, error) { return dev, err }
	t.Cleanup(func() { DeviceFactory = orig })
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "darwin powered off", err: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), target: device.ErrScannerUnavailable},
		{name: "turned off", err: errors.New("Bluetooth is turned off"), target: device.ErrBluetoothOff},
		{name: "hci init", err: errors.New("can't init hci: no devices available"), target: device.ErrScannerUnavailable},
		{name: "not permitted", err: errors.New("socket: operation not permitted"), target: device.ErrPermissionDenied},
		{name: "not connected", err: errors.New("device not connected"), target: device.ErrNotConnected},
		{name: "disconnected", err: errors.New("peer disconnected"), target: device.ErrNotConnected},
		{name: "deadline", err: context.DeadlineExceeded, target: device.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.target)
			assert.ErrorContains(t, got, tt.err.Error(), "normalized error MUST keep the original message")
		})
	}

	assert.NoError(t, NormalizeError(nil))
	plain := errors.New("something else")
	assert.Same(t, plain, NormalizeError(plain))
}

func TestCentralScan(t *testing.T) {
	dev := &mockDevice{}
	withDevice(t, dev, nil)

	dev.On("Scan", mock.Anything, false, mock.Anything).Run(func(args mock.Arguments) {
		h := args.Get(2).(ble.AdvHandler)
		h(fakeAdv{name: "LED-Panel", rssi: -42, addr: "AA:BB:CC:DD:EE:FF"})
		h(fakeAdv{name: "", rssi: -80, addr: "11:22:33:44:55:66"})
	}).Return(context.Canceled)

	var got []device.Advertisement
	err := NewCentral(0, testLogger()).Scan(context.Background(), func(adv device.Advertisement) {
		got = append(got, adv)
	})

	require.NoError(t, err, "context cancellation MUST end a scan without error")
	require.Len(t, got, 2, "central MUST forward every advertisement; filtering belongs to the registry")
	assert.Equal(t, "LED-Panel", got[0].LocalName())
	assert.Equal(t, -42, got[0].RSSI())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", got[0].Addr())
	dev.AssertExpectations(t)
}

func TestCentralScanRadioOff(t *testing.T) {
	withDevice(t, nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))

	err := NewCentral(0, testLogger()).Scan(context.Background(), func(device.Advertisement) {})
	assert.ErrorIs(t, err, device.ErrScannerUnavailable)
}

func TestCentralDial(t *testing.T) {
	dev := &mockDevice{}
	withDevice(t, dev, nil)

	client := &mockClient{}
	dev.On("Dial", mock.Anything, "aa:bb:cc:dd:ee:ff").Return(client, nil).Once()
	dev.On("Dial", mock.Anything, "11:22:33:44:55:66").Return(nil, errors.New("device not connected")).Once()

	central := NewCentral(0, testLogger())

	p, err := central.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", p.Address())

	_, err = central.Dial(context.Background(), "11:22:33:44:55:66")
	assert.ErrorIs(t, err, device.ErrNotConnected)
	assert.ErrorContains(t, err, "11:22:33:44:55:66")
	dev.AssertExpectations(t)
}

func newProfile() (*ble.Profile, *ble.Characteristic) {
	led := &ble.Characteristic{UUID: ble.UUID16(0x2a00)}
	return &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0x1803), Characteristics: []*ble.Characteristic{led, {UUID: ble.UUID16(0x2a01)}}},
		{UUID: ble.UUID16(0x1804), Characteristics: []*ble.Characteristic{{UUID: ble.UUID16(0x2a02)}}},
	}}, led
}

func TestPeripheralDiscoverServices(t *testing.T) {
	profile, led := newProfile()
	client := &mockClient{}
	client.On("DiscoverProfile", true).Return(profile, nil)
	client.On("WriteCharacteristic", led, []byte{0x02}, false).Return(nil).Once()
	client.On("WriteCharacteristic", led, []byte{0x03}, false).Return(errors.New("att: write rejected")).Once()
	client.On("Subscribe", mock.Anything, false, mock.Anything).Return(nil)

	p := newPeripheral("aa:bb:cc:dd:ee:ff", client, testLogger())
	services, err := p.DiscoverServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "1803", device.NormalizeUUID(services[0].UUID()))
	require.Len(t, services[0].Characteristics(), 2)

	char, err := device.FindCharacteristic(services, device.ServiceButtonPrimaryUUID, device.CharLedUUID)
	require.NoError(t, err)
	assert.NoError(t, char.Write([]byte{0x02}))
	assert.ErrorIs(t, char.Write([]byte{0x03}), device.ErrWriteFailed, "rejected write MUST be reported as ErrWriteFailed")

	button, err := device.FindCharacteristic(services, device.ServiceButtonSecondaryUUID, device.CharSecondaryButtonUUID)
	require.NoError(t, err)
	assert.NoError(t, button.Subscribe(func([]byte) {}))

	client.AssertExpectations(t)
}

func TestPeripheralDiscoverServicesFailure(t *testing.T) {
	client := &mockClient{}
	client.On("DiscoverProfile", true).Return(nil, errors.New("att: request not supported"))

	_, err := newPeripheral("aa", client, testLogger()).DiscoverServices(context.Background())
	assert.ErrorIs(t, err, device.ErrServiceDiscoveryFailed)
}

func TestPeripheralDiscoverServicesTimeout(t *testing.T) {
	client := &mockClient{}
	block := make(chan struct{})
	defer close(block)
	client.On("DiscoverProfile", true).Run(func(mock.Arguments) { <-block }).Return(nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newPeripheral("aa", client, testLogger()).DiscoverServices(ctx)
	assert.ErrorIs(t, err, device.ErrServiceDiscoveryFailed)
	assert.ErrorIs(t, err, device.ErrTimeout)
}

func TestPeripheralDisconnect(t *testing.T) {
	client := &mockClient{}
	ch := make(chan struct{})
	client.On("Disconnected").Return(ch)
	client.On("CancelConnection").Return(nil)

	p := newPeripheral("aa", client, testLogger())
	assert.Equal(t, (<-chan struct{})(ch), p.Disconnected())
	assert.NoError(t, p.Disconnect())
	client.AssertExpectations(t)
}
