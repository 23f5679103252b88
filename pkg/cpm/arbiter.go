package cpm

import (
	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/clock"
)

// resolve runs arbitration passes while a change is pending and nothing
// holds the lock. A pass that neither switched the clock, served a client
// nor moved the cursor would repeat itself, so the loop stops there.
func (m *Manager) resolve() {
	limit := len(m.clients) + 1
	for i := 0; i < limit && m.pending && m.lockCount == 0; i++ {
		if !m.arbitrate() {
			break
		}
	}
}

// arbitrate is one arbitration pass. It must only start with lockCount == 0
// and it holds one lock for its whole duration, so callbacks that re-enter
// the Manager can not start a nested pass.
func (m *Manager) arbitrate() (progressed bool) {
	m.lockCount++
	m.passes++
	m.pending = false
	startCursor := m.cursor

	// running lock free clients were not asked to yield
	candidates := m.lockFreeMask
	for _, tr := range m.chip.Intermediates(m.current) {
		// staying put never goes through an intermediate
		if !candidates.Overlaps(tr.Via) {
			candidates = candidates.Without(tr.Ends.Without(m.current))
		}
	}
	if candidates.Empty() {
		glog.V(2).Infof("pass %d: no source reachable from %s without disturbing running clients",
			m.passes, m.table.Names(m.current))
		m.pending = true
		m.lockCount--
		return false
	}

	var (
		changeMask  = m.all
		preferred   clock.Mask
		blocked     bool
		constrained bool
		n           = len(m.clients)
		idx         = m.cursor
	)
	for i := 0; i < n; i++ {
		r := &m.clients[idx]
		if r.enabled {
			next := candidates.Intersect(r.acceptable)
			if next.Empty() {
				if !blocked {
					// start the next pass from the first client left out
					blocked = true
					m.cursor = idx
					m.pending = true
				}
				changeMask = changeMask.Intersect(r.acceptable)
			} else {
				candidates = next
				preferred = preferred.Union(r.preferred)
				constrained = true
			}
		}
		idx++
		if idx >= n {
			idx = 0
		}
	}
	m.changeMask = changeMask

	selected := m.choose(candidates, preferred, constrained)
	changed := m.switchTo(selected)

	served := false
	for i := 0; i < len(m.clients); i++ {
		r := &m.clients[i]
		if !r.enabled || !r.acceptable.Overlaps(m.current) {
			continue
		}
		if r.needLock {
			if r.holdsLock {
				continue
			}
			m.lockCount++
			r.holdsLock = true
		} else {
			if r.running {
				continue
			}
			r.running = true
			m.lockFreeMask = m.lockFreeMask.Intersect(r.acceptable)
		}
		served = true
		m.serve(r)
	}

	m.observer.PassCompleted(Pass{
		Seq:        m.passes,
		Candidates: candidates,
		ChangeMask: m.changeMask,
		Selected:   selected,
		Changed:    changed,
		Pending:    m.pending,
		Cursor:     m.cursor,
	})
	glog.V(2).Infof("pass %d: candidates %s selected %s changed=%t served=%t pending=%t cursor=%d",
		m.passes, m.table.Names(candidates), m.table.Name(selected), changed, served, m.pending, m.cursor)

	m.lockCount--
	return changed || served || m.cursor != startCursor
}

// choose picks exactly one source out of a non-empty candidate set
func (m *Manager) choose(candidates, preferred clock.Mask, constrained bool) clock.Source {
	if compute := candidates.Intersect(m.table.Compute()); m.computeCount > 0 && !compute.Empty() {
		s, _ := compute.Lowest()
		return s
	}
	if !constrained {
		if idle, ok := m.table.Idle(); ok && candidates.Has(idle) {
			return idle
		}
	}
	if p := candidates.Intersect(preferred); !p.Empty() {
		s, _ := p.Lowest()
		return s
	}
	s, _ := candidates.Lowest()
	return s
}

// switchTo applies s when it differs from the current source. Running
// clients hear about a faster clock before the switch and about a slower
// one after it.
func (m *Manager) switchTo(s clock.Source) bool {
	target := s.Bit()
	if target == m.current {
		return false
	}
	from := m.current
	oldFreq := m.chip.SystemFrequency()
	newFreq := m.chip.FrequencyFor(s)

	if newFreq > oldFreq {
		m.configureRunning(newFreq)
	}
	m.chip.ApplySystemClock(s)
	m.current = target
	if newFreq < oldFreq {
		m.configureRunning(newFreq)
	}

	glog.Infof("system clock %s -> %s (%d Hz -> %d Hz)",
		m.table.Names(from), m.table.Name(s), oldFreq, newFreq)
	m.observer.ClockChanged(Change{
		From:          from,
		To:            s,
		FromFrequency: oldFreq,
		ToFrequency:   newFreq,
		Pass:          m.passes,
	})
	return true
}

func (m *Manager) configureRunning(frequency uint32) {
	for i := 0; i < len(m.clients); i++ {
		if r := &m.clients[i]; r.running {
			r.client.ConfigureClock(frequency)
		}
	}
}
