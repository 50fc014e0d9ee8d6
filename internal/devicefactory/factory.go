// Package devicefactory selects the BLE transport backend.
package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/device/go-ble"
	"github.com/srg/blepanel/internal/device/tinygo"
	"github.com/srg/blepanel/pkg/config"
)

// CentralFactory creates the device.Central for the configured transport.
// This is a variable so that it can be overridden in tests.
var CentralFactory = func(cfg *config.Config, logger *logrus.Logger) (device.Central, error) {
	return NewCentral(cfg, logger)
}

// NewCentral creates a central backed by cfg.Transport. The adapter is opened lazily on first scan or dial.
func NewCentral(cfg *config.Config, logger *logrus.Logger) (device.Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	logger.WithFields(logrus.Fields{
		"transport":  cfg.Transport,
		"adapter_id": cfg.AdapterID,
	}).Debug("Creating BLE central")

	switch cfg.Transport {
	case config.TransportGoBLE, "":
		return goble.NewCentral(cfg.AdapterID, logger), nil
	case config.TransportTinyGo:
		return tinygo.NewCentral(cfg.AdapterID, logger), nil
	default:
		return nil, fmt.Errorf("%w: transport %q", device.ErrUnsupported, cfg.Transport)
	}
}
