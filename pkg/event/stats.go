package event

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// DefaultResidencyWindow is the number of dwell samples kept per source
const DefaultResidencyWindow = 32

// Residency tracks how long the system clock stays on each source before
// switching away. It subscribes to ClockChange.
type Residency struct {
	sync.Mutex
	size     int
	windows  map[string]*utils.Window
	current  string
	since    time.Time
	switches uint64
	// OnUpdate is called with the new mean dwell of a source
	OnUpdate func(source string, meanSeconds float64)
}

// NewResidency ...
func NewResidency(size int) *Residency {
	if size <= 0 {
		size = DefaultResidencyWindow
	}
	return &Residency{size: size, windows: make(map[string]*utils.Window)}
}

func (r *Residency) Topic() Topic { return ClockChange }
func (r *Residency) ID() string   { return "residency" }

// Notify closes the dwell interval of the source being left
func (r *Residency) Notify(ev ClockEvent) {
	r.Lock()
	defer r.Unlock()
	r.switches++
	if r.current != "" {
		dwell := ev.Time.Sub(r.since).Seconds()
		w, ok := r.windows[r.current]
		if !ok {
			w = utils.NewWindow(r.size)
			r.windows[r.current] = w
		}
		w.Insert(dwell)
		glog.V(3).Infof("%s held for %.3fs", r.current, dwell)
		if r.OnUpdate != nil {
			r.OnUpdate(r.current, w.Mean())
		}
	}
	r.current = ev.ToName
	r.since = ev.Time
}

// SourceStats summarizes the dwell samples of one source
type SourceStats struct {
	Source  string
	Samples int
	Mean    time.Duration
	Median  time.Duration
	Longest time.Duration
}

// Stats returns one entry per source left at least once, sorted by name
func (r *Residency) Stats() []SourceStats {
	r.Lock()
	defer r.Unlock()
	out := make([]SourceStats, 0, len(r.windows))
	for name, w := range r.windows {
		out = append(out, SourceStats{
			Source:  name,
			Samples: w.Len(),
			Mean:    seconds(w.Mean()),
			Median:  seconds(w.Median()),
			Longest: seconds(w.Max()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Current returns the source being timed and when it was entered
func (r *Residency) Current() (string, time.Time) {
	r.Lock()
	defer r.Unlock()
	return r.current, r.since
}

// Switches ...
func (r *Residency) Switches() uint64 {
	r.Lock()
	defer r.Unlock()
	return r.switches
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
