// Package panel is the caller layer over a scan registry and a device session.
// It owns the LED state the user requested, reconciles it with write outcomes,
// and publishes one combined snapshot to renderers.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/groutine"
	"github.com/srg/blepanel/internal/ringchan"
	"github.com/srg/blepanel/internal/session"
	"github.com/srg/blepanel/scanner"
)

// ErrInvalidLed is returned for an LED index outside the panel.
var ErrInvalidLed = errors.New("invalid LED index")

// LedBank holds two layers of LED state. Requested is what the user asked for;
// Applied is what the peripheral acknowledged.
type LedBank struct {
	Requested [session.LedCount]bool `json:"requested"`
	Applied   [session.LedCount]bool `json:"applied"`
}

// Snapshot is the combined state shown to the user
type Snapshot struct {
	State     session.State                  `json:"state"`
	Address   string                         `json:"address,omitempty"`
	Primary   uint                           `json:"primary_clicks"`
	Secondary uint                           `json:"secondary_clicks"`
	Leds      LedBank                        `json:"leds"`
	Devices   []scanner.PeripheralDescriptor `json:"devices"`
	Scanning  bool                           `json:"scanning"`
	LastError string                         `json:"last_error,omitempty"`
}

// Controller drives a registry and a session on behalf of a user interface.
type Controller struct {
	registry *scanner.Registry
	session  *session.Session
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	workers groutine.Group
	events  *ringchan.RingChannel[session.Event]

	mu      sync.Mutex
	leds    LedBank
	lastErr error

	obsMu     sync.Mutex
	obsClosed bool
	observers map[*ringchan.RingChannel[Snapshot]]struct{}
}

// New creates a controller. The controller takes ownership of registry and sess and closes them on Close.
func New(registry *scanner.Registry, sess *session.Session, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		registry:  registry,
		session:   sess,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		events:    sess.Subscribe(),
		observers: make(map[*ringchan.RingChannel[Snapshot]]struct{}),
	}

	c.workers.Go(ctx, "panel-session-events", c.consumeSession)
	c.workers.Go(ctx, "panel-scan-events", c.consumeRegistry)
	return c
}

// StartScan starts discovery. Permission failures are returned and recorded.
func (c *Controller) StartScan(ctx context.Context) error {
	err := c.registry.StartScan(ctx)
	c.setError(err)
	c.broadcast()
	return err
}

func (c *Controller) StopScan() {
	c.registry.StopScan()
}

// Connect stops any running scan and connects to address.
func (c *Controller) Connect(address string) {
	if c.registry.Scanning() {
		c.registry.StopScan()
	}
	c.session.Connect(address)
}

func (c *Controller) Disconnect() {
	c.session.Disconnect()
}

// SetLed requests LED index on or off.
func (c *Controller) SetLed(index int, on bool) error {
	if !validLed(index) {
		return fmt.Errorf("%w: %d", ErrInvalidLed, index)
	}
	c.mu.Lock()
	c.leds.Requested[index] = on
	c.mu.Unlock()

	c.session.SetLed(index, on)
	c.broadcast()
	return nil
}

// ToggleLed flips the requested state of LED index and sends the new state.
func (c *Controller) ToggleLed(index int) error {
	if !validLed(index) {
		return fmt.Errorf("%w: %d", ErrInvalidLed, index)
	}
	c.mu.Lock()
	on := !c.leds.Requested[index]
	c.leds.Requested[index] = on
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"index": index, "on": on}).Debug("Toggling LED")
	c.session.SetLed(index, on)
	c.broadcast()
	return nil
}

// Leds returns the LED bank.
func (c *Controller) Leds() LedBank {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leds
}

// Snapshot returns the combined state.
func (c *Controller) Snapshot() Snapshot {
	view := c.session.Snapshot()
	snap := Snapshot{
		State:     view.State,
		Address:   view.Address,
		Primary:   view.Counters.Primary,
		Secondary: view.Counters.Secondary,
		Devices:   c.registry.Devices(),
		Scanning:  c.registry.Scanning(),
	}

	c.mu.Lock()
	snap.Leds = c.leds
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()
	return snap
}

// Subscribe returns a stream of snapshots, one per observable change. Slow readers lose the oldest.
func (c *Controller) Subscribe(buffer int) *ringchan.RingChannel[Snapshot] {
	if buffer <= 0 {
		buffer = 16
	}
	rc := ringchan.New[Snapshot](buffer)
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	if c.obsClosed {
		rc.Close()
		return rc
	}
	c.observers[rc] = struct{}{}
	return rc
}

func (c *Controller) Unsubscribe(rc *ringchan.RingChannel[Snapshot]) {
	c.obsMu.Lock()
	delete(c.observers, rc)
	c.obsMu.Unlock()
	rc.Close()
}

// Close stops the controller, the session and the registry.
func (c *Controller) Close() {
	c.cancel()
	c.session.Unsubscribe(c.events)
	c.workers.Wait()

	c.session.Close()
	c.registry.Close()

	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.obsClosed = true
	for rc := range c.observers {
		rc.Close()
	}
	c.observers = map[*ringchan.RingChannel[Snapshot]]struct{}{}
}

func (c *Controller) consumeSession(ctx context.Context) {
	for {
		select {
		case ev, ok := <-c.events.C():
			if !ok {
				return
			}
			c.apply(ev)
			c.broadcast()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) consumeRegistry(ctx context.Context) {
	events := c.registry.Events()
	for {
		select {
		case ev, ok := <-events.C():
			if !ok {
				return
			}
			switch ev.Type {
			case scanner.EventScanStarted:
				c.setError(nil)
			case scanner.EventScannerUnavailable, scanner.EventScanFailed:
				c.setError(ev.Err)
			}
			c.broadcast()
		case <-ctx.Done():
			return
		}
	}
}

// apply reconciles the LED bank with one session event.
func (c *Controller) apply(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case session.EventStateChanged:
		switch ev.State {
		case session.Connecting:
			c.lastErr = nil
		case session.Disconnected:
			c.leds = LedBank{}
		}
	case session.EventWriteCompleted:
		if validLed(ev.LedIndex) {
			c.leds.Applied[ev.LedIndex] = ev.LedOn
		}
	case session.EventError:
		c.lastErr = ev.Err
		if ev.LedWrite && validLed(ev.LedIndex) && rollsBack(ev.Err) {
			c.logger.WithFields(logrus.Fields{
				"index": ev.LedIndex,
				"error": ev.Err,
			}).Warn("LED command failed, restoring applied state")
			c.leds.Requested[ev.LedIndex] = c.leds.Applied[ev.LedIndex]
		}
		if ev.State == session.Disconnected {
			c.leds = LedBank{}
		}
	}
}

// validLed reports whether index names a panel LED. The session accepts any index.
func validLed(index int) bool {
	return index >= 0 && index < session.LedCount
}

func rollsBack(err error) bool {
	return errors.Is(err, device.ErrWriteFailed) ||
		errors.Is(err, device.ErrCharacteristicUnresolved) ||
		errors.Is(err, device.ErrPermissionDenied)
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Controller) broadcast() {
	snap := c.Snapshot()
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	for rc := range c.observers {
		rc.Send(snap)
	}
}
