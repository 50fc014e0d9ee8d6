// Package permission models the platform permission gates checked before every transport operation.
//
// Two models exist and exactly one applies for a given platform API level:
//   - API 31 and newer: dedicated "scan" and "connect" BLE capabilities
//   - older: legacy "bluetooth"/"bluetooth_admin" for connecting and location access for scanning
//
// API level 0 denotes a desktop host with no runtime permission model; everything is allowed.
package permission

import (
	"fmt"
	"slices"

	"github.com/cornelk/hashmap"

	"github.com/srg/blepanel/internal/device"
)

// API levels at which the permission model changes.
const (
	APILevelBLEPermissions     = 31
	APILevelBackgroundLocation = 29
)

// Checker is queried before any transport operation.
// A nil error means the operation is allowed; otherwise the error is a *device.PermissionError.
type Checker interface {
	CanScan() error
	CanConnect() error
}

// Policy maps an API level to the capabilities each operation requires.
type Policy struct {
	APILevel int
}

// ScanRequires returns the capabilities scanning needs under this policy.
func (p Policy) ScanRequires() []device.Capability {
	switch {
	case p.APILevel == 0:
		return nil
	case p.APILevel >= APILevelBLEPermissions:
		return []device.Capability{device.CapScan, device.CapConnect}
	case p.APILevel >= APILevelBackgroundLocation:
		return []device.Capability{device.CapFineLocation, device.CapBackgroundLocation}
	default:
		return []device.Capability{device.CapFineLocation}
	}
}

// ConnectRequires returns the capabilities connect, discover, subscribe and write need.
func (p Policy) ConnectRequires() []device.Capability {
	switch {
	case p.APILevel == 0:
		return nil
	case p.APILevel >= APILevelBLEPermissions:
		return []device.Capability{device.CapConnect}
	default:
		return []device.Capability{device.CapBluetooth, device.CapBluetoothAdmin}
	}
}

// Static is a Checker over an explicit granted set. Grants may change at runtime;
// checks run on every notification, so the set is a lock-free map.
type Static struct {
	policy  Policy
	granted *hashmap.Map[device.Capability, struct{}]
}

// NewStatic creates a checker for policy with the given capabilities granted.
func NewStatic(policy Policy, granted ...device.Capability) *Static {
	s := &Static{policy: policy, granted: hashmap.New[device.Capability, struct{}]()}
	s.Grant(granted...)
	return s
}

// AllowAll returns a checker that never denies.
func AllowAll() *Static {
	return NewStatic(Policy{})
}

// Grant adds capabilities.
func (s *Static) Grant(caps ...device.Capability) {
	for _, c := range caps {
		s.granted.Set(c, struct{}{})
	}
}

// Revoke removes capabilities.
func (s *Static) Revoke(caps ...device.Capability) {
	for _, c := range caps {
		s.granted.Del(c)
	}
}

// Granted returns the currently granted capabilities, sorted.
func (s *Static) Granted() []device.Capability {
	out := make([]device.Capability, 0, s.granted.Len())
	s.granted.Range(func(c device.Capability, _ struct{}) bool {
		out = append(out, c)
		return true
	})
	slices.Sort(out)
	return out
}

func (s *Static) CanScan() error {
	return s.check("scan", s.policy.ScanRequires())
}

func (s *Static) CanConnect() error {
	return s.check("connect", s.policy.ConnectRequires())
}

func (s *Static) check(op string, required []device.Capability) error {
	var missing []device.Capability
	for _, c := range required {
		if _, ok := s.granted.Get(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &device.PermissionError{Operation: op, Missing: missing}
	}
	return nil
}

// ParseCapability validates a capability name from configuration.
func ParseCapability(name string) (device.Capability, error) {
	c := device.Capability(name)
	switch c {
	case device.CapScan, device.CapConnect, device.CapBluetooth, device.CapBluetoothAdmin,
		device.CapFineLocation, device.CapBackgroundLocation:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q", name)
	}
}

var _ Checker = (*Static)(nil)
