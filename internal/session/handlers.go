package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/groutine"
)

// handle applies one message. It returns a non-nil channel when the actor must stop.
func (s *Session) handle(msg message) chan struct{} {
	switch m := msg.(type) {
	case connectCmd:
		s.onConnect(m.address)
	case disconnectCmd:
		s.onDisconnect()
	case setLedCmd:
		s.onSetLed(m.index, m.on)
	case closeCmd:
		return m.done
	case connectedMsg:
		s.onConnected(m)
	case dialFailedMsg:
		s.onDialFailed(m)
	case discoveredMsg:
		s.onDiscovered(m)
	case subscribedMsg:
		s.onSubscribed(m)
	case notificationMsg:
		s.onNotification(m)
	case writeDoneMsg:
		s.onWriteDone(m)
	case linkLostMsg:
		s.onLinkLost(m)
	default:
		s.logger.WithField("message", fmt.Sprintf("%T", msg)).Warn("Unknown session message")
	}
	return nil
}

func (s *Session) current(epoch uint64) bool {
	return epoch == s.epoch
}

func (s *Session) onConnect(address string) {
	// A refused connect leaves the current connection untouched.
	if err := s.checker.CanConnect(); err != nil {
		s.entry().WithField("error", err).Warn("Connect not permitted")
		s.publish(Event{Type: EventError, Err: err})
		return
	}

	if s.state != Disconnected {
		s.entry().WithField("new_address", address).Info("Connect requested while active, restarting session")
		s.teardown("restarting", true)
	}

	s.epoch++
	s.address = address
	s.counters = Counters{}
	s.chars.Store(hashmap.New[Role, device.Characteristic]())
	s.setState(Connecting)

	attemptCtx, cancel := context.WithCancel(s.ctx)
	s.attemptCtx = attemptCtx
	s.attemptCancel = cancel
	epoch := s.epoch
	s.entry().Info("Connecting to BLE device...")

	s.workers.Go(attemptCtx, "ble-dial", func(ctx context.Context) {
		if s.opts.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.ConnectTimeout)
			defer cancel()
		}
		p, err := s.central.Dial(ctx, address)
		if err != nil {
			s.post(dialFailedMsg{epoch: epoch, err: err})
			return
		}
		if !s.post(connectedMsg{epoch: epoch, peripheral: p}) {
			// The actor is gone and nobody else will release the link.
			if err := p.Disconnect(); err != nil {
				s.logger.WithField("error", err).Warn("Failed to disconnect peripheral")
			}
		}
	})
}

func (s *Session) onConnected(m connectedMsg) {
	if !s.current(m.epoch) || s.state != Connecting {
		s.logger.WithFields(logrus.Fields{
			"address": m.peripheral.Address(),
			"epoch":   m.epoch,
		}).Warn("Dropping stale connected event, releasing peripheral")
		s.release(m.peripheral)
		return
	}

	if err := s.checker.CanConnect(); err != nil {
		s.entry().WithField("error", err).Warn("Permission lost while connecting")
		s.release(m.peripheral)
		s.resetConnection()
		s.setState(Disconnected)
		s.publish(Event{Type: EventError, Err: err})
		return
	}

	s.peripheral = m.peripheral
	s.setState(Connected)
	s.entry().Info("BLE device connected")

	epoch := s.epoch
	link := m.peripheral.Disconnected()
	s.workers.Go(s.attemptCtx, "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-link:
			s.post(linkLostMsg{epoch: epoch})
		case <-ctx.Done():
		}
	})

	s.discoverServices()
}

func (s *Session) onDialFailed(m dialFailedMsg) {
	if !s.current(m.epoch) || s.state != Connecting {
		s.logger.WithFields(logrus.Fields{"epoch": m.epoch, "error": m.err}).Debug("Dropping stale dial failure")
		return
	}
	s.entry().WithField("error", m.err).Error("Failed to connect to BLE device")
	s.resetConnection()
	s.counters = Counters{}
	s.setState(Disconnected)
	s.publish(Event{Type: EventError, Err: transportError(m.err)})
}

// discoverServices runs discovery for the current connection.
func (s *Session) discoverServices() {
	if err := s.checker.CanConnect(); err != nil {
		s.entry().WithField("error", err).Warn("Service discovery not permitted")
		s.publish(Event{Type: EventError, Err: err})
		return
	}

	epoch := s.epoch
	p := s.peripheral
	s.entry().Debug("Discovering services and characteristics...")
	s.workers.Go(s.attemptCtx, "ble-discover", func(ctx context.Context) {
		if s.opts.DiscoveryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.DiscoveryTimeout)
			defer cancel()
		}
		services, err := p.DiscoverServices(ctx)
		s.post(discoveredMsg{epoch: epoch, services: services, err: err})
	})
}

func (s *Session) onDiscovered(m discoveredMsg) {
	if !s.current(m.epoch) || s.state != Connected {
		s.logger.WithField("epoch", m.epoch).Debug("Dropping stale discovery result")
		return
	}
	if m.err != nil {
		err := m.err
		if !errors.Is(err, device.ErrServiceDiscoveryFailed) {
			err = fmt.Errorf("%w: %w", device.ErrServiceDiscoveryFailed, err)
		}
		s.entry().WithField("error", err).Error("Service discovery failed")
		s.publish(Event{Type: EventError, Err: err})
		return
	}

	chars := resolve(m.services)
	s.chars.Store(chars)
	s.entry().WithFields(logrus.Fields{
		"services": len(m.services),
		"resolved": chars.Len(),
	}).Info("Services discovered")
	s.publish(Event{Type: EventServicesDiscovered})

	s.enableNotifications(chars)
}

// ledExcludedService is Generic Access, whose Device Name characteristic shares the LED's 0x2A00 UUID.
const ledExcludedService = "1800"

// resolve matches the known identifiers against the discovered services.
func resolve(services []device.Service) *hashmap.Map[Role, device.Characteristic] {
	chars := hashmap.New[Role, device.Characteristic]()

	if c, err := device.FindCharacteristic(services, device.ServiceButtonPrimaryUUID, device.CharPrimaryButtonUUID); err == nil {
		chars.Set(RolePrimaryButton, c)
	}
	if c, err := device.FindCharacteristic(services, device.ServiceButtonSecondaryUUID, device.CharSecondaryButtonUUID); err == nil {
		chars.Set(RoleSecondaryButton, c)
	}

	led := device.NormalizeUUID(device.CharLedUUID)
	for _, svc := range services {
		if device.NormalizeUUID(svc.UUID()) == ledExcludedService {
			continue
		}
		for _, c := range svc.Characteristics() {
			if device.NormalizeUUID(c.UUID()) == led {
				chars.Set(RoleLedControl, c)
				return chars
			}
		}
	}
	return chars
}

// enableNotifications subscribes to both button characteristics that were resolved.
// Missing ones are skipped; subscription is best effort.
func (s *Session) enableNotifications(chars *hashmap.Map[Role, device.Characteristic]) {
	if err := s.checker.CanConnect(); err != nil {
		s.entry().WithField("error", err).Warn("Enabling notifications not permitted")
		s.publish(Event{Type: EventError, Err: err})
		return
	}

	type target struct {
		role Role
		char device.Characteristic
	}
	var targets []target
	for _, role := range []Role{RolePrimaryButton, RoleSecondaryButton} {
		if c, ok := chars.Get(role); ok {
			targets = append(targets, target{role, c})
		} else {
			s.entry().WithField("role", role).Debug("Button characteristic not resolved, skipping notifications")
		}
	}

	epoch := s.epoch
	logger := s.entry()
	s.workers.Go(s.attemptCtx, "ble-subscribe", func(ctx context.Context) {
		var enabled []Role
		for _, t := range targets {
			role := t.role
			err := t.char.Subscribe(func(data []byte) {
				s.post(notificationMsg{epoch: epoch, role: role, value: append([]byte(nil), data...)})
			})
			if err != nil {
				logger.WithFields(logrus.Fields{
					"worker": groutine.GetName(ctx),
					"role":   role,
					"error":  err,
				}).Warn("Failed to enable notifications")
				continue
			}
			enabled = append(enabled, role)
		}
		s.post(subscribedMsg{epoch: epoch, enabled: enabled})
	})
}

func (s *Session) onSubscribed(m subscribedMsg) {
	if !s.current(m.epoch) || s.state != Connected {
		return
	}
	s.entry().WithField("roles", m.enabled).Info("Notifications enabled")
	s.publish(Event{Type: EventNotificationsEnabled, Roles: m.enabled})
}

func (s *Session) onNotification(m notificationMsg) {
	if !s.current(m.epoch) || s.state != Connected {
		s.logger.WithFields(logrus.Fields{"epoch": m.epoch, "role": m.role}).Debug("Dropping stale notification")
		return
	}
	if err := s.checker.CanConnect(); err != nil {
		s.entry().WithField("error", err).Debug("Dropping notification, permission not granted")
		return
	}
	if len(m.value) == 0 {
		s.entry().WithField("role", m.role).Debug("Ignoring empty notification")
		return
	}

	value := uint(m.value[0])
	switch m.role {
	case RolePrimaryButton:
		s.counters.Primary = value
	case RoleSecondaryButton:
		s.counters.Secondary = value
	default:
		return
	}
	s.entry().WithFields(logrus.Fields{"role": m.role, "clicks": value}).Debug("Button clicks")
	s.publish(Event{Type: EventCounterChanged, Role: m.role, Value: value})
}

func (s *Session) onSetLed(index int, on bool) {
	command := LedCommand(index, on)
	fail := func(err error) {
		s.entry().WithFields(logrus.Fields{"index": index, "error": err}).Warn("LED command rejected")
		s.publish(Event{Type: EventError, LedWrite: true, LedIndex: index, LedOn: on, Command: command, Err: err})
	}

	if err := s.checker.CanConnect(); err != nil {
		fail(err)
		return
	}
	if s.state != Connected {
		fail(fmt.Errorf("%w: not connected", device.ErrCharacteristicUnresolved))
		return
	}
	char, ok := s.chars.Load().Get(RoleLedControl)
	if !ok {
		fail(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{device.NormalizeUUID(device.CharLedUUID)}})
		return
	}

	s.writes = append(s.writes, writeReq{index: index, on: on, command: command, char: char})
	s.pumpWrites()
}

// pumpWrites starts the next queued write when none is in flight, keeping commands in order.
func (s *Session) pumpWrites() {
	if s.writing || len(s.writes) == 0 {
		return
	}
	req := s.writes[0]
	s.writes = s.writes[1:]
	s.writing = true

	epoch := s.epoch
	s.workers.Go(s.attemptCtx, "ble-write", func(ctx context.Context) {
		err := req.char.Write([]byte{req.command})
		s.post(writeDoneMsg{epoch: epoch, req: req, err: err})
	})
}

func (s *Session) onWriteDone(m writeDoneMsg) {
	if !s.current(m.epoch) {
		return
	}
	s.writing = false

	ev := Event{LedWrite: true, LedIndex: m.req.index, LedOn: m.req.on, Command: m.req.command}
	log := s.entry().WithFields(logrus.Fields{
		"index":     m.req.index,
		"command":   fmt.Sprintf("0x%02x", m.req.command),
		"char_uuid": m.req.char.UUID(),
	})
	if m.err != nil {
		err := m.err
		if !errors.Is(err, device.ErrWriteFailed) {
			err = fmt.Errorf("%w: %w", device.ErrWriteFailed, err)
		}
		log.WithField("error", err).Error("Failed to send LED command")
		ev.Type = EventError
		ev.Err = err
	} else {
		log.Debug("LED command sent successfully")
		ev.Type = EventWriteCompleted
	}
	s.publish(ev)
	s.pumpWrites()
}

func (s *Session) onDisconnect() {
	if s.state == Disconnected {
		s.logger.Debug("Disconnect requested while disconnected")
		return
	}
	s.teardown("disconnect requested", true)
}

func (s *Session) onLinkLost(m linkLostMsg) {
	if !s.current(m.epoch) || s.state == Disconnected {
		return
	}
	s.entry().Warn("Peripheral reported disconnection")
	s.counters = Counters{}
	s.teardown("link lost", true)
	s.publish(Event{Type: EventError, Err: device.ErrTransportDisconnected})
}

// teardown releases the transport, clears the characteristic map, and moves to Disconnected.
// Bumping the epoch invalidates every in-flight transport message of the old connection.
func (s *Session) teardown(reason string, notify bool) {
	s.entry().WithField("reason", reason).Info("Disconnecting")
	if s.peripheral != nil {
		s.release(s.peripheral)
	}
	s.resetConnection()
	s.epoch++
	s.state = Disconnected
	if notify {
		s.publish(Event{Type: EventStateChanged})
	} else {
		s.syncView()
	}
}

// resetConnection drops everything tied to the current connection except counters.
func (s *Session) resetConnection() {
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
		s.attemptCtx = nil
	}
	s.peripheral = nil
	s.chars.Store(hashmap.New[Role, device.Characteristic]())
	s.writes = nil
	s.writing = false
}

// release disconnects p off the actor goroutine.
func (s *Session) release(p device.Peripheral) {
	logger := s.logger.WithField("address", p.Address())
	s.workers.Go(context.Background(), "ble-release", func(context.Context) {
		if err := p.Disconnect(); err != nil {
			logger.WithField("error", err).Warn("Failed to disconnect peripheral")
		}
	})
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.publish(Event{Type: EventStateChanged})
}

func transportError(err error) error {
	if errors.Is(err, device.ErrTransportDisconnected) {
		return err
	}
	return fmt.Errorf("%w: %w", device.ErrTransportDisconnected, err)
}
