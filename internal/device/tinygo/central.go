// Package tinygo implements device.Central on top of tinygo.org/x/bluetooth.
package tinygo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blepanel/internal/device"
	"tinygo.org/x/bluetooth"
)

// Central wraps a tinygo bluetooth adapter. tinygo delivers link-loss through a single
// adapter-wide connect handler, so the central keeps a registry of live peripherals by address.
type Central struct {
	adapterID int
	logger    *logrus.Logger

	mu      sync.Mutex
	adapter *bluetooth.Adapter
	links   map[string]*Peripheral
}

// NewCentral creates a tinygo central for the given adapter index.
func NewCentral(adapterID int, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{
		adapterID: adapterID,
		logger:    logger,
		links:     make(map[string]*Peripheral),
	}
}

func (c *Central) enable() (*bluetooth.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adapter != nil {
		c.logger.Debug("Reusing existing BLE adapter")
		return c.adapter, nil
	}

	c.logger.Debug("Creating new BLE adapter")
	adapter, err := newAdapter(c.adapterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrScannerUnavailable, err)
	}
	if err := adapter.Enable(); err != nil {
		return nil, NormalizeError(fmt.Errorf("ble: failed to enable adapter: %w", err))
	}

	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		key := strings.ToLower(d.Address.String())
		c.mu.Lock()
		p, ok := c.links[key]
		delete(c.links, key)
		c.mu.Unlock()
		if ok {
			c.logger.WithField("address", key).Debug("Adapter reported disconnection")
			p.markDisconnected()
		}
	})

	c.adapter = adapter
	return adapter, nil
}

// stopRetryInterval paces StopScan retries while a cancelled scan has not returned yet.
const stopRetryInterval = 50 * time.Millisecond

// Scan blocks until ctx is done; tinygo's Scan only returns after StopScan.
func (c *Central) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	if ctx.Err() != nil {
		return nil
	}
	adapter, err := c.enable()
	if err != nil {
		return err
	}
	// Enabling can take long enough for the caller to give up.
	if ctx.Err() != nil {
		return nil
	}

	returned := make(chan struct{})
	defer close(returned)
	go stopScanOnCancel(ctx, returned, adapter.StopScan, stopRetryInterval, c.logger)

	err = adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		handler(advertisement{
			name: result.LocalName(),
			rssi: int(result.RSSI),
			addr: strings.ToLower(result.Address.String()),
		})
	})
	if err != nil && ctx.Err() == nil {
		return NormalizeError(err)
	}
	return nil
}

// stopScanOnCancel calls stop once ctx is done and keeps calling it until returned is closed.
// A stop issued before the adapter started scanning is a no-op, so a single call can be lost.
func stopScanOnCancel(ctx context.Context, returned <-chan struct{}, stop func() error, interval time.Duration, logger *logrus.Logger) {
	select {
	case <-returned:
		return
	case <-ctx.Done():
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := stop(); err != nil && !strings.Contains(err.Error(), "no scan in progress") {
			logger.WithField("error", err).Warn("ble: failed to stop scan")
		}
		select {
		case <-returned:
			return
		case <-ticker.C:
		}
	}
}

// Dial connects to address, bounding the attempt with ctx's deadline when one is set.
func (c *Central) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adapter, err := c.enable()
	if err != nil {
		return nil, err
	}

	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	type connectResult struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan connectResult, 1)
	go func() {
		dev, err := adapter.Connect(addr, params)
		ch <- connectResult{dev, err}
	}()

	select {
	case <-ctx.Done():
		// Connect cannot be aborted; release the link if it completes after all.
		go func() {
			if res := <-ch; res.err == nil {
				_ = res.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, NormalizeError(ctx.Err()))
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, NormalizeError(res.err))
		}
		p := newPeripheral(strings.ToLower(address), res.dev, c.logger)
		c.mu.Lock()
		c.links[p.address] = p
		c.mu.Unlock()
		return p, nil
	}
}

type advertisement struct {
	name string
	rssi int
	addr string
}

func (a advertisement) LocalName() string { return a.name }
func (a advertisement) RSSI() int         { return a.rssi }
func (a advertisement) Addr() string      { return a.addr }

var _ device.Central = (*Central)(nil)
