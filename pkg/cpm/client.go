package cpm

import (
	"fmt"

	"github.com/openshift/clockpm-daemon/pkg/clock"
)

// ClockClient is implemented by every peripheral driver that registers with
// the Manager. Callbacks run on the caller's stack and may call back into the
// Manager.
type ClockClient interface {
	// Name identifies the client in logs and metrics
	Name() string
	// ClockEnabled tells the client the system clock is compatible and it
	// may start its operation.
	ClockEnabled()
	// ClockDisabled is delivered when the client gives up its clock
	ClockDisabled()
	// ConfigureClock reports the system frequency so the client can adjust
	// its prescalers. It is delivered before a switch to a faster source and
	// after a switch to a slower one.
	ConfigureClock(frequency uint32)
}

// Handle is the opaque ticket returned by Register. The zero Handle is
// never valid.
type Handle struct {
	owner *Manager
	id    uint32
}

// Valid reports whether the handle was issued by a Manager
func (h Handle) Valid() bool {
	return h.owner != nil && h.id != 0
}

func (h Handle) String() string {
	if !h.Valid() {
		return "client(invalid)"
	}
	return fmt.Sprintf("client(%d)", h.id-1)
}

// record is the Manager's private state for one client
type record struct {
	client ClockClient

	enabled  bool
	needLock bool
	// holdsLock is set while the client accounts for one unit of lockCount
	holdsLock bool
	// running is set once a lock free client has been told its clock is on
	running bool

	acceptable   clock.Mask
	declared     clock.Mask
	preferred    clock.Mask
	minFrequency uint32
	maxFrequency uint32
}

func (r *record) served() bool {
	return r.holdsLock || r.running
}

func (r *record) name() string {
	if r.client == nil {
		return "<nil>"
	}
	return r.client.Name()
}
