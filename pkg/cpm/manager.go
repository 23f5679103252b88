// Package cpm arbitrates the single system clock between registered
// peripheral clients.
//
// The Manager is not safe for concurrent use. It is re-entrant: a client
// callback may call EnableClock or DisableClock for itself or any other
// client while the Manager is on the stack. lockCount is the only guard
// against re-entrant arbitration. While it is non-zero a request that needs
// a different clock is recorded as pending instead of being served, and the
// pending change is resolved once the last lock is released.
package cpm

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/clock"
)

// DefaultCapacity is the size of the client table when none is given
const DefaultCapacity = 10

// Change describes one completed switch of the system clock
type Change struct {
	From          clock.Mask
	To            clock.Source
	FromFrequency uint32
	ToFrequency   uint32
	Pass          uint64
}

// Pass summarizes one arbitration pass
type Pass struct {
	Seq        uint64
	Candidates clock.Mask
	ChangeMask clock.Mask
	Selected   clock.Source
	Changed    bool
	Pending    bool
	Cursor     int
}

// Observer receives arbitration events. Calls happen on the Manager's stack
// and must not call back into the Manager.
type Observer interface {
	ClockChanged(c Change)
	PassCompleted(p Pass)
}

type nopObserver struct{}

func (nopObserver) ClockChanged(Change) {}
func (nopObserver) PassCompleted(Pass)  {}

// Manager owns the client table and the current system clock selection
type Manager struct {
	chip     clock.Chip
	table    *clock.Table
	all      clock.Mask
	observer Observer

	// fixed capacity, index+1 is the handle id
	clients []record

	// current holds at most one source, zero until the first pass
	current      clock.Mask
	pending      bool
	lockCount    uint32
	changeMask   clock.Mask
	lockFreeMask clock.Mask
	cursor       int
	computeCount uint32
	passes       uint64
}

// New builds a Manager for chip with room for capacity clients. The chip's
// table is frozen: its policy must be complete before New.
func New(chip clock.Chip, capacity int, observer Observer) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if observer == nil {
		observer = nopObserver{}
	}
	table := chip.Sources()
	table.Freeze()
	return &Manager{
		chip:         chip,
		table:        table,
		all:          table.All(),
		observer:     observer,
		clients:      make([]record, 0, capacity),
		changeMask:   table.All(),
		lockFreeMask: table.All(),
	}
}

// Capacity returns the size of the client table
func (m *Manager) Capacity() int {
	return cap(m.clients)
}

// Sources returns the chip's clock table
func (m *Manager) Sources() *clock.Table {
	return m.table
}

// Register adds c to the client table. Every source is acceptable to a
// fresh client and it needs the lock until told otherwise.
func (m *Manager) Register(c ClockClient) (Handle, error) {
	if c == nil {
		return Handle{}, fmt.Errorf("register: nil clock client")
	}
	if len(m.clients) >= cap(m.clients) {
		return Handle{}, fmt.Errorf("register %s: %w (capacity %d)", c.Name(), ErrOutOfCapacity, cap(m.clients))
	}
	m.clients = append(m.clients, record{
		client:       c,
		needLock:     true,
		acceptable:   m.all,
		declared:     m.all,
		maxFrequency: m.chip.MaxFrequency(),
	})
	h := Handle{owner: m, id: uint32(len(m.clients))}
	glog.V(2).Infof("clock client %s registered as %s", c.Name(), h)
	return h, nil
}

func (m *Manager) lookup(h Handle) (*record, error) {
	if h.owner != m || h.id == 0 || int(h.id) > len(m.clients) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return &m.clients[h.id-1], nil
}

// EnableClock tells the Manager the client needs a compatible clock. The
// client's ClockEnabled callback is delivered either before EnableClock
// returns or later, once a pending change selects a compatible source.
// The returned value is the system frequency at return time.
func (m *Manager) EnableClock(h Handle) (uint32, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}

	if r.enabled {
		// re-assertion, the lock is not taken twice
		if r.served() {
			r.client.ClockEnabled()
		}
		return m.chip.SystemFrequency(), nil
	}

	r.enabled = true
	clocks := r.acceptable
	next := m.changeMask.Intersect(clocks)

	switch {
	case !clocks.Overlaps(m.current):
		// also covers the first request, when no source is selected yet
		glog.V(2).Infof("%s needs %s, current is %s", r.name(), m.table.Names(clocks), m.table.Names(m.current))
		m.requestChange(next)
	case !r.needLock:
		lockFree := m.lockFreeMask.Intersect(clocks)
		if lockFree.Overlaps(m.changeMask) {
			m.lockFreeMask = lockFree
			r.running = true
			m.serve(r)
		} else {
			m.requestChange(next)
		}
	case !m.pending:
		m.lockCount++
		r.holdsLock = true
		m.serve(r)
	default:
		m.changeMask = next
	}

	return m.chip.SystemFrequency(), nil
}

// DisableClock releases the client's claim on the clock. Disabling a
// disabled client is a no-op.
func (m *Manager) DisableClock(h Handle) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	if !r.enabled {
		return nil
	}

	r.enabled = false
	wasRunning := r.running
	r.running = false
	if r.holdsLock {
		r.holdsLock = false
		m.lockCount--
	}
	if wasRunning || !r.needLock {
		m.lockFreeMask = m.runningMask()
	}
	r.client.ClockDisabled()

	if m.lockCount == 0 {
		m.pending = true
		m.resolve()
	}
	return nil
}

// ChangeClock runs a pending arbitration pass if nothing holds the lock.
// Drivers call it after finishing work that deferred a change.
func (m *Manager) ChangeClock() {
	if m.pending {
		m.resolve()
	}
}

// SetComputeMode counts requests for the performance source. The first
// request and the last release both trigger arbitration.
func (m *Manager) SetComputeMode(on bool) {
	if on {
		m.computeCount++
		if m.computeCount == 1 {
			m.pending = true
			m.resolve()
		}
		return
	}
	if m.computeCount == 0 {
		glog.Warning("compute mode released more often than requested")
		return
	}
	m.computeCount--
	if m.computeCount == 0 {
		m.pending = true
		m.resolve()
	}
}

// ComputeMode reports whether any compute mode request is outstanding
func (m *Manager) ComputeMode() bool {
	return m.computeCount > 0
}

// Current returns the selected source; ok is false before the first pass
func (m *Manager) Current() (s clock.Source, ok bool) {
	return m.current.Lowest()
}

// SystemFrequency returns the frequency reported by the chip
func (m *Manager) SystemFrequency() uint32 {
	return m.chip.SystemFrequency()
}

// Pending reports whether a clock change is waiting to be arbitrated
func (m *Manager) Pending() bool {
	return m.pending
}

// LockCount returns the number of outstanding locks
func (m *Manager) LockCount() uint32 {
	return m.lockCount
}

// requestChange records that the clock must move to one of mask and
// resolves right away when nothing holds the lock.
func (m *Manager) requestChange(mask clock.Mask) {
	m.pending = true
	m.changeMask = mask
	m.resolve()
}

// serve delivers the frequency and the enable callback to r
func (m *Manager) serve(r *record) {
	r.client.ConfigureClock(m.chip.SystemFrequency())
	r.client.ClockEnabled()
}

// runningMask intersects the masks of all running lock free clients
func (m *Manager) runningMask() clock.Mask {
	mask := m.all
	for i := range m.clients {
		r := &m.clients[i]
		if r.running {
			mask &= r.acceptable
		}
	}
	return mask
}
