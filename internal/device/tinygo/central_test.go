package tinygo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScan models tinygo's adapter: StopScan only takes effect once a scan is running.
type fakeScan struct {
	mu      sync.Mutex
	running bool
	stopped chan struct{}
	stops   atomic.Int32
}

func newFakeScan() *fakeScan { return &fakeScan{stopped: make(chan struct{})} }

func (f *fakeScan) start() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakeScan) StopScan() error {
	f.stops.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return errors.New("no scan in progress")
	}
	f.running = false
	close(f.stopped)
	return nil
}

func TestStopScanOnCancel_ScanStartsAfterCancel(t *testing.T) {
	// GOAL: Verify a scan that starts after cancellation is still stopped
	//
	// TEST SCENARIO: cancel, first StopScan finds no scan, scan starts → a retry stops it
	scan := newFakeScan()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	returned := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		stopScanOnCancel(ctx, returned, scan.StopScan, 5*time.Millisecond, logrus.New())
	}()

	require.Eventually(t, func() bool { return scan.stops.Load() >= 1 }, time.Second, time.Millisecond)
	scan.start()

	select {
	case <-scan.stopped:
	case <-time.After(time.Second):
		t.Fatal("late scan MUST be stopped by a retry")
	}

	close(returned)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stopper MUST exit once the scan returned")
	}
}

func TestStopScanOnCancel_ReturnsWithoutStopping(t *testing.T) {
	scan := newFakeScan()
	returned := make(chan struct{})
	close(returned)

	stopScanOnCancel(context.Background(), returned, scan.StopScan, time.Millisecond, logrus.New())

	assert.Zero(t, scan.stops.Load(), "a scan that returned on its own MUST NOT be stopped")
}
