package cpm

import (
	"github.com/openshift/clockpm-daemon/pkg/clock"
)

// SetNeedLock sets whether the client holds the lock while it runs. A
// client that is already served switches mode in place without hearing
// ClockEnabled again: a lock holder gives up its lock and joins the running
// set, a running client leaves the set and takes a lock.
func (m *Manager) SetNeedLock(h Handle, needLock bool) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	if r.needLock == needLock {
		return nil
	}
	r.needLock = needLock
	switch {
	case needLock && r.running:
		r.running = false
		m.lockFreeMask = m.runningMask()
		r.holdsLock = true
		m.lockCount++
	case !needLock && r.holdsLock:
		r.holdsLock = false
		m.lockCount--
		if r.acceptable.Overlaps(m.current) {
			r.running = true
			m.lockFreeMask = m.lockFreeMask.Intersect(r.acceptable)
		}
		// the mask may have moved while the lock was held
		if m.lockCount == 0 && m.pending {
			m.resolve()
		}
	}
	return nil
}

// SetAcceptableSources sets the sources the client can run from
// regardless of frequency.
func (m *Manager) SetAcceptableSources(h Handle, sources clock.Mask) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	r.declared = sources.Intersect(m.all)
	m.maskChanged(r)
	return nil
}

// SetMinFrequency sets the lowest system frequency the client works at
func (m *Manager) SetMinFrequency(h Handle, hz uint32) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	r.minFrequency = hz
	m.maskChanged(r)
	return nil
}

// SetMaxFrequency sets the highest system frequency the client works at
func (m *Manager) SetMaxFrequency(h Handle, hz uint32) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	r.maxFrequency = hz
	m.maskChanged(r)
	return nil
}

// SetPreferred sets the sources the client would rather run from. The
// preference only breaks ties between compatible sources.
func (m *Manager) SetPreferred(h Handle, sources clock.Mask) error {
	r, err := m.lookup(h)
	if err != nil {
		return err
	}
	r.preferred = sources.Intersect(m.all)
	m.recompute(r)
	return nil
}

// NeedLock ...
func (m *Manager) NeedLock(h Handle) (bool, error) {
	r, err := m.lookup(h)
	if err != nil {
		return false, err
	}
	return r.needLock, nil
}

// AcceptableSources returns the declared source list of the client
func (m *Manager) AcceptableSources(h Handle) (clock.Mask, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return r.declared, nil
}

// ClockMask returns the effective mask: the declared sources that fall in
// the client's frequency range.
func (m *Manager) ClockMask(h Handle) (clock.Mask, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return r.acceptable, nil
}

// MinFrequency ...
func (m *Manager) MinFrequency(h Handle) (uint32, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return r.minFrequency, nil
}

// MaxFrequency ...
func (m *Manager) MaxFrequency(h Handle) (uint32, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return r.maxFrequency, nil
}

// Preferred ...
func (m *Manager) Preferred(h Handle) (clock.Mask, error) {
	r, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return r.preferred, nil
}

// Enabled reports whether the client currently claims the clock
func (m *Manager) Enabled(h Handle) (bool, error) {
	r, err := m.lookup(h)
	if err != nil {
		return false, err
	}
	return r.enabled, nil
}

// Running reports whether the client has been told its clock is on
func (m *Manager) Running(h Handle) (bool, error) {
	r, err := m.lookup(h)
	if err != nil {
		return false, err
	}
	return r.served(), nil
}

func (m *Manager) recompute(r *record) {
	r.acceptable = r.declared.Intersect(m.table.SourcesInRange(r.minFrequency, r.maxFrequency))
}

// maskChanged recomputes the effective mask and keeps the lock free set in
// step with it. A running client that can no longer use the current source
// is stopped and a change is requested on its behalf. A lock holder in the
// same position only marks the change pending.
func (m *Manager) maskChanged(r *record) {
	m.recompute(r)
	switch {
	case r.running && !r.acceptable.Overlaps(m.current):
		r.running = false
		m.lockFreeMask = m.runningMask()
		m.requestChange(m.changeMask.Intersect(r.acceptable))
	case r.running:
		m.lockFreeMask = m.runningMask()
	case r.holdsLock && !r.acceptable.Overlaps(m.current):
		// the clock can not move under the lock, so the change waits
		// for the release
		m.pending = true
	case r.enabled && !r.served():
		m.changeMask = m.changeMask.Intersect(r.acceptable)
		m.pending = true
		m.resolve()
	}
}
