// Package scanner implements the discovered-peripheral registry: it accumulates
// unique, named peripherals seen during one scanning session, in discovery order.
package scanner

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/groutine"
	"github.com/srg/blepanel/internal/permission"
	"github.com/srg/blepanel/internal/ringchan"
)

// PeripheralDescriptor is a discovered device. It is never mutated after creation:
// later sightings of the same identifier are dropped.
type PeripheralDescriptor struct {
	Identifier     string `json:"identifier"`
	DisplayName    string `json:"name"`
	SignalStrength int    `json:"rssi"`
}

// EventType classifies registry events
type EventType int

const (
	EventDiscovered EventType = iota
	EventScanStarted
	EventScanStopped
	EventScannerUnavailable
	EventScanFailed
)

func (t EventType) String() string {
	switch t {
	case EventDiscovered:
		return "discovered"
	case EventScanStarted:
		return "scan_started"
	case EventScanStopped:
		return "scan_stopped"
	case EventScannerUnavailable:
		return "scanner_unavailable"
	case EventScanFailed:
		return "scan_failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Type   EventType
	Device PeripheralDescriptor
	Err    error
}

// Options configures scanning behavior
type Options struct {
	// Duration stops the scan automatically; zero scans until StopScan.
	Duration    time.Duration
	AllowList   []string
	BlockList   []string
	EventBuffer int
}

// DefaultOptions returns default scanning options
func DefaultOptions() *Options {
	return &Options{EventBuffer: 100}
}

// Registry handles BLE device discovery.
// Appends are atomic with respect to readers: Devices and All never observe a torn list.
type Registry struct {
	central device.Central
	checker permission.Checker
	logger  *logrus.Logger
	opts    Options
	events  *ringchan.RingChannel[Event]
	workers groutine.Group

	// seen is swapped on clear and read without mu to drop repeat sightings cheaply.
	seen atomic.Pointer[hashmap.Map[string, struct{}]]

	mu         sync.RWMutex
	devices    *orderedmap.OrderedMap[string, PeripheralDescriptor]
	scanning   bool
	generation uint64
	cancel     context.CancelFunc
}

// NewRegistry creates a registry scanning through central.
func NewRegistry(central device.Central, checker permission.Checker, opts *Options, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if checker == nil {
		checker = permission.AllowAll()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultOptions().EventBuffer
	}

	r := &Registry{
		central: central,
		checker: checker,
		logger:  logger,
		opts:    *opts,
		events:  ringchan.New[Event](buffer),
		devices: orderedmap.New[string, PeripheralDescriptor](),
	}
	r.seen.Store(hashmap.New[string, struct{}]())
	return r
}

// StartScan clears the registry and begins listening for discovery events.
// Fails with a permission error, and changes nothing, when scanning is not permitted.
// Starting while already scanning restarts the scan.
func (r *Registry) StartScan(ctx context.Context) error {
	if err := r.checker.CanScan(); err != nil {
		r.logger.WithField("error", err).Warn("Scan not permitted")
		return err
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.devices = orderedmap.New[string, PeripheralDescriptor]()
	r.seen.Store(hashmap.New[string, struct{}]())
	r.generation++
	gen := r.generation

	var scanCtx context.Context
	var cancel context.CancelFunc
	if r.opts.Duration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, r.opts.Duration)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	r.cancel = cancel
	r.scanning = true
	r.mu.Unlock()

	r.logger.WithField("duration", r.opts.Duration).Info("Starting BLE scan...")
	r.events.Send(Event{Type: EventScanStarted})

	r.workers.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := r.central.Scan(ctx, func(adv device.Advertisement) {
			r.discovered(gen, adv.Addr(), adv.LocalName(), adv.RSSI())
		})
		r.finish(gen, err)
	})
	return nil
}

// finish runs when the scan worker of generation gen returns.
func (r *Registry) finish(gen uint64, err error) {
	r.mu.Lock()
	current := gen == r.generation && r.scanning
	if current {
		r.scanning = false
		r.cancel()
		r.cancel = nil
	}
	count := r.devices.Len()
	r.mu.Unlock()

	if err != nil {
		if errors.Is(err, device.ErrScannerUnavailable) {
			r.logger.WithField("error", err).Warn("BLE scanner unavailable")
			r.events.Send(Event{Type: EventScannerUnavailable, Err: err})
		} else {
			r.logger.WithField("error", err).Error("BLE scan failed")
			r.events.Send(Event{Type: EventScanFailed, Err: err})
		}
	}
	if current {
		r.logger.WithField("device_count", count).Info("BLE scan completed")
		r.events.Send(Event{Type: EventScanStopped})
	}
}

// OnDiscovered records a discovery event for the active scan.
// Events with an empty name, for an already known identifier, or outside a scan are dropped.
// Returns true when a new descriptor was appended.
func (r *Registry) OnDiscovered(identifier, name string, signalStrength int) bool {
	return r.discovered(0, identifier, name, signalStrength)
}

func (r *Registry) discovered(gen uint64, identifier, name string, rssi int) bool {
	identifier = strings.ToLower(identifier)
	if name == "" || identifier == "" {
		return false
	}
	if !r.included(identifier) {
		return false
	}
	if _, ok := r.seen.Load().Get(identifier); ok {
		return false
	}

	r.mu.Lock()
	if !r.scanning || (gen != 0 && gen != r.generation) {
		r.mu.Unlock()
		return false
	}
	if _, loaded := r.seen.Load().GetOrInsert(identifier, struct{}{}); loaded {
		r.mu.Unlock()
		return false
	}
	desc := PeripheralDescriptor{Identifier: identifier, DisplayName: name, SignalStrength: rssi}
	r.devices.Set(identifier, desc)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"device":  name,
		"address": identifier,
		"rssi":    rssi,
	}).Info("Discovered new device")
	r.events.Send(Event{Type: EventDiscovered, Device: desc})
	return true
}

// Seen reports whether identifier was discovered in the current scan. It does not lock the registry.
func (r *Registry) Seen(identifier string) bool {
	_, ok := r.seen.Load().Get(strings.ToLower(identifier))
	return ok
}

// included applies the allow/block lists
func (r *Registry) included(addr string) bool {
	for _, blocked := range r.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}
	if len(r.opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range r.opts.AllowList {
		if strings.EqualFold(addr, allowed) {
			return true
		}
	}
	return false
}

// StopScan stops listening. The discovered list is retained.
func (r *Registry) StopScan() {
	r.mu.Lock()
	wasScanning := r.scanning
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.scanning = false
	r.mu.Unlock()

	if wasScanning {
		r.logger.Info("BLE scan stopped")
		r.events.Send(Event{Type: EventScanStopped})
	}
}

// Reset clears the discovered list without affecting an active scan.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = orderedmap.New[string, PeripheralDescriptor]()
	r.seen.Store(hashmap.New[string, struct{}]())
}

// Scanning reports whether a scan is active.
func (r *Registry) Scanning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanning
}

// Len returns the number of discovered peripherals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// Get returns the descriptor for identifier.
func (r *Registry) Get(identifier string) (PeripheralDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Get(strings.ToLower(identifier))
}

// Devices returns a captured copy of the discovered peripherals in discovery order.
func (r *Registry) Devices() []PeripheralDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devs := make([]PeripheralDescriptor, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		devs = append(devs, pair.Value)
	}
	return devs
}

// All returns a lazy view of the discovered peripherals. Nothing is read until the
// sequence is ranged over, and every iteration reflects the registry at that time.
func (r *Registry) All() iter.Seq[PeripheralDescriptor] {
	return func(yield func(PeripheralDescriptor) bool) {
		for _, d := range r.Devices() {
			if !yield(d) {
				return
			}
		}
	}
}

// Events returns the registry event stream.
func (r *Registry) Events() *ringchan.RingChannel[Event] {
	return r.events
}

// Close stops scanning, waits for the scan worker, and closes the event stream.
func (r *Registry) Close() {
	r.StopScan()
	r.workers.Wait()
	r.events.Close()
}
