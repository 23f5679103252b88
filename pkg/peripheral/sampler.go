package peripheral

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// Sampler is a converter that keeps working while the clock changes, as
// long as the clock stays within its acceptable sources. It never holds
// the lock.
type Sampler struct {
	binding
	name   string
	window time.Duration
	loop   Loop

	mu       sync.Mutex
	running  bool
	open     bool
	freq     uint32
	samples  uint64
	deferred uint64
}

// NewSampler samples for window after every trigger
func NewSampler(name string, window time.Duration, loop Loop) *Sampler {
	return &Sampler{name: name, window: window, loop: loop}
}

func (s *Sampler) Name() string { return s.name }

// Trigger opens a sampling window
func (s *Sampler) Trigger() {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return
	}
	s.open = true
	s.mu.Unlock()

	if _, err := s.enable(); err != nil {
		glog.Errorf("%s: enable clock: %v", s.name, err)
		return
	}
	s.mu.Lock()
	if !s.running {
		s.deferred++
	}
	s.mu.Unlock()
	s.loop.After(s.window, s.close)
}

func (s *Sampler) close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	if err := s.disable(); err != nil {
		glog.Errorf("%s: disable clock: %v", s.name, err)
	}
}

// ClockEnabled takes a sample
func (s *Sampler) ClockEnabled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.samples++
}

func (s *Sampler) ClockDisabled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// ConfigureClock takes one more sample at the new rate
func (s *Sampler) ConfigureClock(frequency uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = frequency
	if s.running {
		s.samples++
	}
}

func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Operations: s.samples, Deferred: s.deferred, Frequency: s.freq, Active: s.running}
}
