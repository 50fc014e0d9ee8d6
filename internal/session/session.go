// Package session manages the lifecycle of one peripheral connection: connect, discover
// services, resolve the LED and button characteristics, subscribe to button notifications,
// accept LED commands, and disconnect.
//
// A Session is an actor. Caller commands and transport callbacks are posted to a single
// mailbox and applied by one goroutine, so state, the characteristic map and the counters
// have a single writer. Each connection attempt gets a new epoch; transport messages
// carrying an older epoch are discarded.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/groutine"
	"github.com/srg/blepanel/internal/permission"
	"github.com/srg/blepanel/internal/ringchan"
)

// Options configures a session
type Options struct {
	// ConnectTimeout bounds a dial; zero waits indefinitely.
	ConnectTimeout time.Duration
	// DiscoveryTimeout bounds service discovery; zero waits indefinitely.
	DiscoveryTimeout time.Duration
	// ObserverBuffer is the event capacity of each observer before the oldest is dropped.
	ObserverBuffer int
}

// DefaultOptions returns default session options
func DefaultOptions() *Options {
	return &Options{
		ConnectTimeout:   30 * time.Second,
		DiscoveryTimeout: 30 * time.Second,
		ObserverBuffer:   64,
	}
}

// Session owns at most one transport connection.
type Session struct {
	central device.Central
	checker permission.Checker
	logger  *logrus.Logger
	opts    Options

	mailbox *mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	workers groutine.Group
	stopped chan struct{}

	// Actor-owned.
	epoch         uint64
	state         State
	address       string
	counters      Counters
	peripheral    device.Peripheral
	attemptCtx    context.Context
	attemptCancel context.CancelFunc
	writes        []writeReq
	writing       bool

	// chars is written by the actor only and swapped wholesale, so readers need no lock.
	chars atomic.Pointer[hashmap.Map[Role, device.Characteristic]]

	viewMu sync.RWMutex
	view   View

	obsMu     sync.Mutex
	obsClosed bool
	observers map[*ringchan.RingChannel[Event]]struct{}
}

type writeReq struct {
	index   int
	on      bool
	command byte
	char    device.Characteristic
}

// New creates a session and starts its actor.
func New(central device.Central, checker permission.Checker, opts *Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if checker == nil {
		checker = permission.AllowAll()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.ObserverBuffer <= 0 {
		opts.ObserverBuffer = DefaultOptions().ObserverBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		central:   central,
		checker:   checker,
		logger:    logger,
		opts:      *opts,
		mailbox:   newMailbox(),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		observers: make(map[*ringchan.RingChannel[Event]]struct{}),
	}
	s.chars.Store(hashmap.New[Role, device.Characteristic]())

	groutine.Go(ctx, "session-actor", s.run)
	return s
}

// Connect starts a connection attempt to address. Outcomes are reported through
// the observed state and events.
func (s *Session) Connect(address string) {
	s.mailbox.post(connectCmd{address: address})
}

// Disconnect tears down the connection. It is a no-op when already disconnected.
func (s *Session) Disconnect() {
	s.mailbox.post(disconnectCmd{})
}

// SetLed writes the command for LED index to the peripheral.
func (s *Session) SetLed(index int, on bool) {
	s.mailbox.post(setLedCmd{index: index, on: on})
}

// Close disconnects, stops the actor and closes every observer.
// Unlike the other commands it waits until the actor and its workers have exited,
// so the peripheral is released by the time it returns.
func (s *Session) Close() {
	done := make(chan struct{})
	if s.mailbox.post(closeCmd{done: done}) {
		<-done
	}
	<-s.stopped
	s.workers.Wait()
}

// Subscribe registers an observer. Events are never blocked on a slow observer:
// once its buffer is full the oldest event is dropped.
func (s *Session) Subscribe() *ringchan.RingChannel[Event] {
	rc := ringchan.New[Event](s.opts.ObserverBuffer)
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	if s.obsClosed {
		rc.Close()
		return rc
	}
	s.observers[rc] = struct{}{}
	return rc
}

// Unsubscribe removes and closes an observer.
func (s *Session) Unsubscribe(rc *ringchan.RingChannel[Event]) {
	s.obsMu.Lock()
	delete(s.observers, rc)
	s.obsMu.Unlock()
	rc.Close()
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	v := s.view
	v.Resolved = append([]Role(nil), s.view.Resolved...)
	return v
}

func (s *Session) State() State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.State
}

func (s *Session) Counters() Counters {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.Counters
}

func (s *Session) Address() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.Address
}

func (s *Session) Epoch() uint64 {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view.Epoch
}

// Resolved reports whether role has a resolved characteristic.
func (s *Session) Resolved(role Role) bool {
	_, ok := s.chars.Load().Get(role)
	return ok
}

func (s *Session) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-s.mailbox.wake:
			for _, msg := range s.mailbox.drain() {
				if done := s.handle(msg); done != nil {
					s.shutdown()
					close(done)
					return
				}
			}
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

func (s *Session) shutdown() {
	s.mailbox.close()
	if s.state != Disconnected {
		s.teardown("session closed", false)
	}
	s.cancel()

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.obsClosed = true
	for rc := range s.observers {
		rc.Close()
	}
	s.observers = map[*ringchan.RingChannel[Event]]struct{}{}
	s.logger.Debug("Session closed")
}

// publish refreshes the view from actor state and then notifies observers,
// so an observer reading the view after an event never sees older state.
func (s *Session) publish(ev Event) {
	s.syncView()

	ev.Epoch = s.epoch
	ev.State = s.state
	ev.Address = s.address

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for rc := range s.observers {
		rc.Send(ev)
	}
}

func (s *Session) syncView() {
	var resolved []Role
	chars := s.chars.Load()
	for _, role := range []Role{RoleLedControl, RolePrimaryButton, RoleSecondaryButton} {
		if _, ok := chars.Get(role); ok {
			resolved = append(resolved, role)
		}
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.view = View{
		State:    s.state,
		Address:  s.address,
		Epoch:    s.epoch,
		Counters: s.counters,
		Resolved: resolved,
	}
}

// post returns false once the actor has stopped accepting messages.
func (s *Session) post(msg message) bool {
	return s.mailbox.post(msg)
}

func (s *Session) entry() *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"epoch":   s.epoch,
	})
}
