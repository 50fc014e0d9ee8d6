package session

import (
	"fmt"
)

// State is the connection state of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Disconnected, Connecting, Connected} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Role is the logical purpose of a resolved characteristic.
type Role int

const (
	RoleLedControl Role = iota
	RolePrimaryButton
	RoleSecondaryButton
)

func (r Role) String() string {
	switch r {
	case RoleLedControl:
		return "led_control"
	case RolePrimaryButton:
		return "primary_button"
	case RoleSecondaryButton:
		return "secondary_button"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	for _, candidate := range []Role{RoleLedControl, RolePrimaryButton, RoleSecondaryButton} {
		if candidate.String() == string(text) {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// Counters holds the last click counts reported by the two buttons.
type Counters struct {
	Primary   uint `json:"primary"`
	Secondary uint `json:"secondary"`
}

// LedCount is the number of LEDs on the panel.
const LedCount = 3

// LedCommand maps an LED index and on/off state to its one-byte command.
// Indices 0..2 switch on with 0x01..0x03; off and any other index is 0x00.
func LedCommand(index int, on bool) byte {
	if !on || index < 0 || index >= LedCount {
		return 0x00
	}
	return byte(index + 1)
}

// EventType classifies session events
type EventType int

const (
	EventStateChanged EventType = iota
	EventServicesDiscovered
	EventNotificationsEnabled
	EventCounterChanged
	EventWriteCompleted
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventServicesDiscovered:
		return "services_discovered"
	case EventNotificationsEnabled:
		return "notifications_enabled"
	case EventCounterChanged:
		return "counter_changed"
	case EventWriteCompleted:
		return "write_completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is pushed to observers on every observable change.
// Fields beyond Type, Epoch and State are populated according to Type.
type Event struct {
	Type    EventType
	Epoch   uint64
	State   State
	Address string

	// EventCounterChanged
	Role  Role
	Value uint

	// EventNotificationsEnabled
	Roles []Role

	// EventWriteCompleted, and EventError for LED commands
	LedWrite bool
	LedIndex int
	LedOn    bool
	Command  byte

	Err error
}

// View is a consistent snapshot of the session's observable state.
type View struct {
	State    State    `json:"state"`
	Address  string   `json:"address,omitempty"`
	Epoch    uint64   `json:"epoch"`
	Counters Counters `json:"counters"`
	Resolved []Role   `json:"resolved,omitempty"`
}
