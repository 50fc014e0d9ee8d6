package session

import (
	"sync"

	"github.com/srg/blepanel/internal/device"
)

// mailbox is an unbounded FIFO feeding the session actor. Posting never blocks,
// so commands from callers and callbacks from the transport return immediately.
type mailbox struct {
	mu     sync.Mutex
	queue  []message
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// post enqueues msg. Returns false once the mailbox is closed.
func (m *mailbox) post(msg message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// drain takes every queued message.
func (m *mailbox) drain() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
}

// message is anything the actor handles. Transport-originated messages carry the
// epoch of the connection attempt that produced them.
type message interface{}

type connectCmd struct{ address string }
type disconnectCmd struct{}
type setLedCmd struct {
	index int
	on    bool
}
type closeCmd struct{ done chan struct{} }

type connectedMsg struct {
	epoch      uint64
	peripheral device.Peripheral
}
type dialFailedMsg struct {
	epoch uint64
	err   error
}
type discoveredMsg struct {
	epoch    uint64
	services []device.Service
	err      error
}
type subscribedMsg struct {
	epoch   uint64
	enabled []Role
}
type notificationMsg struct {
	epoch uint64
	role  Role
	value []byte
}
type writeDoneMsg struct {
	epoch uint64
	req   writeReq
	err   error
}
type linkLostMsg struct{ epoch uint64 }
