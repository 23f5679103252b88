package clock

import (
	"sync"
)

// Simulated is a Chip backed only by its Table. Applying a source records it
// and takes effect at once.
type Simulated struct {
	mu      sync.Mutex
	table   *Table
	current Source
	freq    uint32
	applied uint64

	// OnApply runs after every switch, outside the lock
	OnApply func(s Source)
}

// NewSimulated returns a chip that boots from the source named boot
func NewSimulated(table *Table, boot Source) *Simulated {
	return &Simulated{
		table:   table,
		current: boot,
		freq:    table.FrequencyFor(boot),
	}
}

func (c *Simulated) Sources() *Table              { return c.table }
func (c *Simulated) MaxFrequency() uint32         { return c.table.MaxFrequency() }
func (c *Simulated) FrequencyFor(s Source) uint32 { return c.table.FrequencyFor(s) }

func (c *Simulated) Intermediates(current Mask) []Transition {
	return c.table.Intermediates(current)
}

func (c *Simulated) ApplySystemClock(s Source) {
	c.mu.Lock()
	c.current = s
	c.freq = c.table.FrequencyFor(s)
	c.applied++
	c.mu.Unlock()
	if c.OnApply != nil {
		c.OnApply(s)
	}
}

func (c *Simulated) SystemFrequency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// Active returns the source the simulated core runs from
func (c *Simulated) Active() Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Applied counts the switches performed so far
func (c *Simulated) Applied() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}
