package cpm

import (
	"github.com/openshift/clockpm-daemon/pkg/clock"
)

// ClientState is a copy of one client record
type ClientState struct {
	Name         string
	Handle       Handle
	Enabled      bool
	NeedLock     bool
	HoldsLock    bool
	Running      bool
	Acceptable   clock.Mask
	Declared     clock.Mask
	Preferred    clock.Mask
	MinFrequency uint32
	MaxFrequency uint32
}

// Snapshot is a copy of the Manager's state at one point in time
type Snapshot struct {
	Sources      *clock.Table
	Current      clock.Mask
	Frequency    uint32
	Pending      bool
	LockCount    uint32
	ChangeMask   clock.Mask
	LockFreeMask clock.Mask
	Cursor       int
	ComputeCount uint32
	Passes       uint64
	Clients      []ClientState
}

// Snapshot copies the Manager's state
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Sources:      m.table,
		Current:      m.current,
		Frequency:    m.chip.SystemFrequency(),
		Pending:      m.pending,
		LockCount:    m.lockCount,
		ChangeMask:   m.changeMask,
		LockFreeMask: m.lockFreeMask,
		Cursor:       m.cursor,
		ComputeCount: m.computeCount,
		Passes:       m.passes,
		Clients:      make([]ClientState, len(m.clients)),
	}
	for i := range m.clients {
		r := &m.clients[i]
		s.Clients[i] = ClientState{
			Name:         r.name(),
			Handle:       Handle{owner: m, id: uint32(i + 1)},
			Enabled:      r.enabled,
			NeedLock:     r.needLock,
			HoldsLock:    r.holdsLock,
			Running:      r.running,
			Acceptable:   r.acceptable,
			Declared:     r.declared,
			Preferred:    r.preferred,
			MinFrequency: r.minFrequency,
			MaxFrequency: r.maxFrequency,
		}
	}
	return s
}

// Waiting reports whether an enabled client has not been served yet
func (c ClientState) Waiting() bool {
	return c.Enabled && !c.HoldsLock && !c.Running
}

// Served reports whether the client has been told its clock is on
func (c ClientState) Served() bool {
	return c.HoldsLock || c.Running
}
