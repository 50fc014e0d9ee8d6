package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/device"
)

// Addresses used across tests.
const (
	PanelAddress = "aa:bb:cc:dd:ee:ff"
	OtherAddress = "11:22:33:44:55:66"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockAdvertisement(name, address string, rssi int) device.Advertisement {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi).Build()
}

func CreateMockPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address)
}

func CreateMockPeripheralFromJSON(address, jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	return NewPeripheralBuilder(address).FromJSON(jsonStrFmt, args...)
}

// CreateLedPanel creates a peripheral exposing the LED/button profile with the
// Generic Access service first, as real devices report it.
// Both button characteristics accept subscriptions; LED writes need explicit expectations.
func CreateLedPanel(address string) *FakePeripheral {
	p := CreateMockPeripheralFromJSON(address, `{
		"services": [
			{ "uuid": "1800", "characteristics": [ { "uuid": "2a00" } ] },
			{ "uuid": "%s", "characteristics": [ { "uuid": "%s" }, { "uuid": "%s" } ] },
			{ "uuid": "%s", "characteristics": [ { "uuid": "%s" } ] }
		]
	}`,
		device.ServiceButtonPrimaryUUID, device.CharPrimaryButtonUUID, device.CharLedUUID,
		device.ServiceButtonSecondaryUUID, device.CharSecondaryButtonUUID,
	).Build()

	p.Characteristic(device.ServiceButtonPrimaryUUID, device.CharPrimaryButtonUUID).On("Subscribe").Return(nil)
	p.Characteristic(device.ServiceButtonSecondaryUUID, device.CharSecondaryButtonUUID).On("Subscribe").Return(nil)
	return p
}

// LoadFixture reads a file relative to the project root (the directory holding go.mod).
func LoadFixture(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		projectRoot = parent
	}

	fullPath := filepath.Join(projectRoot, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}

	return string(data), nil
}
