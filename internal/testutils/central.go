package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srg/blepanel/internal/device"
)

// FakeCentral is a scriptable device.Central.
// Scan replays the configured advertisements and then blocks until its context ends.
// Dial hands out registered peripherals, optionally held until released.
type FakeCentral struct {
	mu          sync.Mutex
	ads         []device.Advertisement
	scanErr     error
	dialErr     error
	peripherals map[string]*FakePeripheral
	dialGate    chan struct{}
	gateHonors  bool

	scans   atomic.Int32
	dials   atomic.Int32
	scanned chan struct{}
}

// NewFakeCentral creates an empty fake central.
func NewFakeCentral() *FakeCentral {
	return &FakeCentral{
		peripherals: make(map[string]*FakePeripheral),
		scanned:     make(chan struct{}, 16),
	}
}

// WithAdvertisements sets the advertisements replayed by every scan.
func (f *FakeCentral) WithAdvertisements(ads ...device.Advertisement) *FakeCentral {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ads = ads
	return f
}

// WithScanError makes scans fail immediately with err.
func (f *FakeCentral) WithScanError(err error) *FakeCentral {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanErr = err
	return f
}

// WithDialError makes dials to unknown addresses fail with err.
func (f *FakeCentral) WithDialError(err error) *FakeCentral {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialErr = err
	return f
}

// AddPeripheral registers p so Dial(p.Address()) succeeds.
func (f *FakeCentral) AddPeripheral(p *FakePeripheral) *FakeCentral {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peripherals[p.Address()] = p
	return f
}

// HoldDial blocks dials until release is called. When honorContext is false the
// held dial ignores cancellation, modelling a transport that cannot abort a connect.
func (f *FakeCentral) HoldDial(honorContext bool) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.dialGate = gate
	f.gateHonors = honorContext
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Scans returns how many scans were started.
func (f *FakeCentral) Scans() int { return int(f.scans.Load()) }

// Dials returns how many dials were attempted.
func (f *FakeCentral) Dials() int { return int(f.dials.Load()) }

// ScanReplayed is signalled each time a scan finished replaying its advertisements.
func (f *FakeCentral) ScanReplayed() <-chan struct{} { return f.scanned }

func (f *FakeCentral) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	f.scans.Add(1)

	f.mu.Lock()
	ads, err := f.ads, f.scanErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range ads {
		if ctx.Err() != nil {
			return nil
		}
		handler(adv)
	}
	select {
	case f.scanned <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil
}

func (f *FakeCentral) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	f.dials.Add(1)

	f.mu.Lock()
	gate, honors := f.dialGate, f.gateHonors
	p, ok := f.peripherals[address]
	dialErr := f.dialErr
	f.mu.Unlock()

	if gate != nil {
		if honors {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
			}
		} else {
			<-gate
		}
	}

	if !ok {
		if dialErr != nil {
			return nil, dialErr
		}
		return nil, fmt.Errorf("%w: no peripheral at %s", device.ErrNotConnected, address)
	}
	return p, nil
}

var _ device.Central = (*FakeCentral)(nil)
