// Package device models the accelerator side of the simulation: the
// host/device mirror state of shared buffers and the worker pool that runs
// kernels over index ranges.
package device

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when one side writes while the other side holds
// changes that have not been synchronized.
var ErrConflict = errors.New("host/device mirror conflict")

// State is the synchronization state of a mirrored buffer.
type State uint8

const (
	Synced      State = iota // host and device copies agree
	HostDirty                // host has writes the device has not seen
	DeviceDirty              // device has writes the host has not seen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case HostDirty:
		return "host_dirty"
	case DeviceDirty:
		return "device_dirty"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Mirror tracks which side of a mirrored buffer is authoritative.
// The zero value is Synced.
type Mirror struct {
	state   State
	realloc bool
	syncs   int
}

// State returns the current state.
func (m *Mirror) State() State { return m.state }

// Pending reports whether a synchronization is outstanding.
func (m *Mirror) Pending() bool { return m.state != Synced }

// NeedsRealloc reports whether the device copy must be reallocated and
// fully copied on the next synchronization.
func (m *Mirror) NeedsRealloc() bool { return m.realloc }

// Syncs returns the number of completed synchronizations.
func (m *Mirror) Syncs() int { return m.syncs }

// HostWrite records a host-side write.
func (m *Mirror) HostWrite() error {
	if m.state == DeviceDirty {
		return fmt.Errorf("%w: host write with unsynchronized device changes", ErrConflict)
	}
	m.state = HostDirty
	return nil
}

// DeviceWrite records a device-side write.
func (m *Mirror) DeviceWrite() error {
	if m.state == HostDirty {
		return fmt.Errorf("%w: device write with unsynchronized host changes", ErrConflict)
	}
	m.state = DeviceDirty
	return nil
}

// Invalidate records a host reallocation. The device copy is stale as a whole.
func (m *Mirror) Invalidate() {
	m.state = HostDirty
	m.realloc = true
}

// Complete marks a synchronization as done.
func (m *Mirror) Complete() {
	m.state = Synced
	m.realloc = false
	m.syncs++
}
