package sam4l

import (
	"sync"

	"github.com/golang/glog"
)

// DefaultTickHertz is the scheduler tick rate
const DefaultTickHertz = 1000

// maxReload is the width of the SysTick reload register
const maxReload = 1<<24 - 1

// SysTick tracks the reload value that keeps the tick rate constant across
// core frequency changes.
type SysTick struct {
	mu        sync.Mutex
	tickHertz uint32
	reload    uint32
}

// NewSysTick ...
func NewSysTick(tickHertz, coreHertz uint32) *SysTick {
	s := &SysTick{tickHertz: tickHertz}
	s.SetHertz(coreHertz)
	return s
}

// SetHertz re-derives the reload value for a new core frequency
func (s *SysTick) SetHertz(coreHertz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reload := uint32(0)
	if s.tickHertz > 0 && coreHertz >= s.tickHertz {
		reload = coreHertz/s.tickHertz - 1
	}
	if reload > maxReload {
		glog.Warningf("systick reload %d truncated to %d", reload, maxReload)
		reload = maxReload
	}
	s.reload = reload
}

// Reload ...
func (s *SysTick) Reload() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload
}

// TickHertz ...
func (s *SysTick) TickHertz() uint32 {
	return s.tickHertz
}
