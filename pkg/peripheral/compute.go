package peripheral

import (
	"sync"
	"time"

	"github.com/openshift/clockpm-daemon/pkg/cpm"
)

// Compute is a CPU bound job that asks for the performance source while it
// runs. It is not a clock client.
type Compute struct {
	name  string
	burst time.Duration
	loop  Loop
	mgr   *cpm.Manager

	mu     sync.Mutex
	active bool
	bursts uint64
}

// NewCompute ...
func NewCompute(name string, burst time.Duration, m *cpm.Manager, loop Loop) *Compute {
	return &Compute{name: name, burst: burst, loop: loop, mgr: m}
}

func (c *Compute) Name() string { return c.name }

// Trigger starts a burst unless one is running
func (c *Compute) Trigger() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()
	c.mgr.SetComputeMode(true)
	c.loop.After(c.burst, c.finish)
}

func (c *Compute) finish() {
	c.mu.Lock()
	c.active = false
	c.bursts++
	c.mu.Unlock()
	c.mgr.SetComputeMode(false)
}

func (c *Compute) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Operations: c.bursts, Frequency: c.mgr.SystemFrequency(), Active: c.active}
}
