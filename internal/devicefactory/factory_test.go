package devicefactory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/device/go-ble"
	"github.com/srg/blepanel/internal/device/tinygo"
	"github.com/srg/blepanel/pkg/config"
)

func TestNewCentral(t *testing.T) {
	cfg := config.DefaultConfig()

	central, err := NewCentral(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &goble.Central{}, central)

	cfg.Transport = config.TransportTinyGo
	central, err = NewCentral(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &tinygo.Central{}, central)

	cfg.Transport = "bluez"
	_, err = NewCentral(cfg, nil)
	assert.ErrorIs(t, err, device.ErrUnsupported)
}
