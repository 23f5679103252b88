// Package peripheral holds simulated drivers that use the clock manager the
// way real bus and converter drivers do.
package peripheral

import (
	"fmt"
	"time"

	"github.com/openshift/clockpm-daemon/pkg/cpm"
)

// Loop runs functions on the goroutine that owns the manager. After plays
// the part of a completion interrupt.
type Loop interface {
	Post(fn func())
	After(d time.Duration, fn func())
}

// Device is a peripheral driven by a periodic workload. Trigger is always
// called on the loop.
type Device interface {
	Name() string
	Trigger()
	Stats() Stats
}

// Stats ...
type Stats struct {
	Operations uint64
	// Deferred counts requests that had to wait for a clock change
	Deferred  uint64
	Frequency uint32
	Active    bool
}

// binding is the manager side of a clock client
type binding struct {
	mgr    *cpm.Manager
	handle cpm.Handle
}

// Attach connects the driver to the handle it was registered under
func (b *binding) Attach(m *cpm.Manager, h cpm.Handle) {
	b.mgr, b.handle = m, h
}

func (b *binding) enable() (uint32, error) {
	if b.mgr == nil {
		return 0, fmt.Errorf("driver not attached to a clock manager")
	}
	return b.mgr.EnableClock(b.handle)
}

func (b *binding) disable() error {
	if b.mgr == nil {
		return fmt.Errorf("driver not attached to a clock manager")
	}
	return b.mgr.DisableClock(b.handle)
}
