package peripheral

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// maxDivider is the width of the serial clock divider
const maxDivider = 255

// SPI is a bus master that needs the clock locked for the length of each
// transfer. Transfers requested while one is in flight are queued.
type SPI struct {
	binding
	name string
	baud uint32
	busy time.Duration
	loop Loop

	mu       sync.Mutex
	divider  uint32
	freq     uint32
	queued   int
	inFlight bool
	waiting  bool
	done     uint64
	deferred uint64
}

// NewSPI ...
func NewSPI(name string, baud uint32, busy time.Duration, loop Loop) *SPI {
	return &SPI{name: name, baud: baud, busy: busy, loop: loop, divider: 1}
}

func (s *SPI) Name() string { return s.name }

// Trigger queues one transfer and asks for the clock
func (s *SPI) Trigger() {
	s.mu.Lock()
	s.queued++
	start := !s.inFlight && !s.waiting
	if start {
		s.waiting = true
	}
	s.mu.Unlock()
	if !start {
		return
	}
	if _, err := s.enable(); err != nil {
		glog.Errorf("%s: enable clock: %v", s.name, err)
		return
	}
	s.mu.Lock()
	if s.waiting {
		s.deferred++
		glog.V(2).Infof("%s: transfer waits for a clock change", s.name)
	}
	s.mu.Unlock()
}

// ClockEnabled starts the next queued transfer
func (s *SPI) ClockEnabled() {
	s.mu.Lock()
	s.waiting = false
	if s.inFlight || s.queued == 0 {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()
	s.loop.After(s.busy, s.complete)
}

// ClockDisabled drops transfers that never started
func (s *SPI) ClockDisabled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false
	if !s.inFlight {
		s.queued = 0
	}
}

// ConfigureClock derives the serial clock divider for the new frequency
func (s *SPI) ConfigureClock(frequency uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = frequency
	s.divider = divider(frequency, s.baud)
	glog.V(3).Infof("%s: divider %d for %d Hz", s.name, s.divider, frequency)
}

// complete runs as the end of transfer interrupt
func (s *SPI) complete() {
	s.mu.Lock()
	s.inFlight = false
	s.done++
	s.queued--
	more := s.queued > 0
	if more {
		s.inFlight = true
	}
	s.mu.Unlock()
	if more {
		s.loop.After(s.busy, s.complete)
		return
	}
	if err := s.disable(); err != nil {
		glog.Errorf("%s: disable clock: %v", s.name, err)
	}
}

// Divider returns the divider and the resulting bus rate
func (s *SPI) Divider() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divider, s.freq / s.divider
}

func (s *SPI) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Operations: s.done, Deferred: s.deferred, Frequency: s.freq, Active: s.inFlight}
}

// divider is the smallest divider that keeps the bus at or below baud
func divider(frequency, baud uint32) uint32 {
	if baud == 0 {
		return 1
	}
	d := (frequency + baud - 1) / baud
	if d < 1 {
		d = 1
	}
	if d > maxDivider {
		d = maxDivider
	}
	return d
}
