// Package web exposes a panel controller over HTTP: a WebSocket that streams snapshots
// and accepts commands, and a JSON endpoint for the current state.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/blepanel/internal/groutine"
	"github.com/srg/blepanel/internal/panel"
	"github.com/srg/blepanel/internal/ringchan"
)

// Panel is the controller surface the hub drives.
type Panel interface {
	StartScan(ctx context.Context) error
	StopScan()
	Connect(address string)
	Disconnect()
	SetLed(index int, on bool) error
	ToggleLed(index int) error
	Snapshot() panel.Snapshot
	Subscribe(buffer int) *ringchan.RingChannel[panel.Snapshot]
	Unsubscribe(rc *ringchan.RingChannel[panel.Snapshot])
}

// Command types accepted on the WebSocket.
const (
	CommandScan       = "scan"
	CommandStopScan   = "stop_scan"
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
	CommandSetLed     = "set_led"
	CommandToggleLed  = "toggle_led"
)

// Message types sent on the WebSocket.
const (
	MessageState = "state"
	MessageError = "error"
)

// Command is a client request
type Command struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Index   int    `json:"index,omitempty"`
	On      bool   `json:"on,omitempty"`
}

// Message is pushed to clients
type Message struct {
	Type  string          `json:"type"`
	State *panel.Snapshot `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Options configures the hub
type Options struct {
	Listen string
	// BroadcastInterval re-sends the snapshot periodically; zero sends on change only.
	BroadcastInterval time.Duration
	WriteTimeout      time.Duration
}

const (
	defaultWriteTimeout  = 5 * time.Second
	shutdownTimeout      = 5 * time.Second
	snapshotBufferLength = 32
)

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans snapshots out to WebSocket clients and routes their commands to the panel.
type Hub struct {
	panel    Panel
	opts     Options
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub for p.
func NewHub(p Panel, opts Options, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		panel:    p,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
}

// Handler returns the HTTP routes of the hub.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/api/state", h.serveState)
	return mux
}

// Run serves on Options.Listen until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	server := &http.Server{Addr: h.opts.Listen, Handler: h.Handler()}

	var workers groutine.Group
	workers.Go(ctx, "web-broadcast", h.Broadcast)

	errCh := make(chan error, 1)
	groutine.Go(ctx, "web-server", func(context.Context) {
		h.logger.WithField("listen", h.opts.Listen).Info("Web hub listening")
		errCh <- server.ListenAndServe()
	})

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			h.logger.WithField("error", serr).Warn("Web hub shutdown failed")
		}
	}

	h.closeClients()
	workers.Wait()
	h.logger.Info("Web hub stopped")
	if err != nil {
		return fmt.Errorf("web hub: %w", err)
	}
	return nil
}

// Broadcast pushes every panel snapshot to all clients until ctx is done.
func (h *Hub) Broadcast(ctx context.Context) {
	updates := h.panel.Subscribe(snapshotBufferLength)
	defer func() {
		h.panel.Unsubscribe(updates)
		if m := updates.GetMetrics(); m.Overwritten > 0 {
			h.logger.WithField("dropped", m.Overwritten).Debug("Broadcast fell behind, snapshots dropped")
		}
	}()

	var tick <-chan time.Time
	if h.opts.BroadcastInterval > 0 {
		ticker := time.NewTicker(h.opts.BroadcastInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case snap, ok := <-updates.C():
			if !ok {
				return
			}
			h.send(latest(updates, snap))
		case <-tick:
			h.send(h.panel.Snapshot())
		case <-ctx.Done():
			return
		}
	}
}

// latest drains snapshots queued behind snap so slow clients only get the newest one.
func latest(updates *ringchan.RingChannel[panel.Snapshot], snap panel.Snapshot) panel.Snapshot {
	for {
		next, ok := updates.TryReceive()
		if !ok {
			return snap
		}
		snap = next
	}
}

func (h *Hub) send(snap panel.Snapshot) {
	msg := Message{Type: MessageState, State: &snap}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := h.write(c, msg); err != nil {
			h.logger.WithFields(logrus.Fields{
				"remote": c.conn.RemoteAddr().String(),
				"error":  err,
			}).Debug("Dropping web client")
			h.remove(c)
		}
	}
}

func (h *Hub) write(c *client, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) closeClients() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) serveState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.panel.Snapshot()); err != nil {
		h.logger.WithField("error", err).Warn("Failed to encode state")
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithField("error", err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger := h.logger.WithField("remote", conn.RemoteAddr().String())
	logger.Info("Web client connected")
	defer func() {
		h.remove(c)
		logger.Info("Web client disconnected")
	}()

	snap := h.panel.Snapshot()
	if err := h.write(c, Message{Type: MessageState, State: &snap}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logger.WithField("error", err).Debug("Malformed web command")
			if werr := h.write(c, Message{Type: MessageError, Error: "malformed command"}); werr != nil {
				return
			}
			continue
		}
		if err := h.dispatch(r.Context(), cmd); err != nil {
			logger.WithFields(logrus.Fields{"command": cmd.Type, "error": err}).Warn("Web command failed")
			if werr := h.write(c, Message{Type: MessageError, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

// ErrUnknownCommand is returned for a command type the hub does not handle.
var ErrUnknownCommand = errors.New("unknown command")

func (h *Hub) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandScan:
		// The scan outlives the request that started it.
		return h.panel.StartScan(context.WithoutCancel(ctx))
	case CommandStopScan:
		h.panel.StopScan()
	case CommandConnect:
		if cmd.Address == "" {
			return errors.New("connect: address is required")
		}
		h.panel.Connect(cmd.Address)
	case CommandDisconnect:
		h.panel.Disconnect()
	case CommandSetLed:
		return h.panel.SetLed(cmd.Index, cmd.On)
	case CommandToggleLed:
		return h.panel.ToggleLed(cmd.Index)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}
