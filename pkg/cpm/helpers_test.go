package cpm_test

import (
	"fmt"
	"testing"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/stretchr/testify/require"
)

const (
	src115K clock.Source = iota
	src4MHz
	src16MHz
	src48MHz
)

// fakeChip records every switch in a shared log
type fakeChip struct {
	table   *clock.Table
	freq    uint32
	applied []clock.Source
	log     *[]string
}

func newFakeChip(t *testing.T, log *[]string) *fakeChip {
	tbl, err := clock.NewTable([]clock.SourceInfo{
		{Name: "SRC_115K", Frequency: 115200},
		{Name: "SRC_4MHZ", Frequency: 4000000},
		{Name: "SRC_16MHZ", Frequency: 16000000},
		{Name: "SRC_48MHZ", Frequency: 48000000},
	})
	require.NoError(t, err)
	return &fakeChip{table: tbl, freq: 115200, log: log}
}

func (c *fakeChip) Sources() *clock.Table             { return c.table }
func (c *fakeChip) MaxFrequency() uint32               { return c.table.MaxFrequency() }
func (c *fakeChip) FrequencyFor(s clock.Source) uint32 { return c.table.FrequencyFor(s) }
func (c *fakeChip) SystemFrequency() uint32            { return c.freq }
func (c *fakeChip) Intermediates(current clock.Mask) []clock.Transition {
	return c.table.Intermediates(current)
}

func (c *fakeChip) ApplySystemClock(s clock.Source) {
	c.applied = append(c.applied, s)
	c.freq = c.table.FrequencyFor(s)
	if c.log != nil {
		*c.log = append(*c.log, "apply:"+c.table.Name(s))
	}
}

// recorder is a clock client that logs its callbacks
type recorder struct {
	name       string
	log        *[]string
	enabled    int
	disabled   int
	configured []uint32
	onEnabled  func()
}

func newRecorder(name string, log *[]string) *recorder {
	return &recorder{name: name, log: log}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) ClockEnabled() {
	r.enabled++
	r.record("enabled")
	if r.onEnabled != nil {
		r.onEnabled()
	}
}

func (r *recorder) ClockDisabled() {
	r.disabled++
	r.record("disabled")
}

func (r *recorder) ConfigureClock(frequency uint32) {
	r.configured = append(r.configured, frequency)
	r.record(fmt.Sprintf("configure:%d", frequency))
}

func (r *recorder) record(what string) {
	if r.log != nil {
		*r.log = append(*r.log, r.name+":"+what)
	}
}

// register adds a recorder with the given sources and lock requirement
func register(t *testing.T, m *cpm.Manager, c cpm.ClockClient, needLock bool, sources ...clock.Source) cpm.Handle {
	h, err := m.Register(c)
	require.NoError(t, err)
	require.NoError(t, m.SetNeedLock(h, needLock))
	if len(sources) > 0 {
		require.NoError(t, m.SetAcceptableSources(h, clock.MaskOf(sources...)))
	}
	return h
}

func current(t *testing.T, m *cpm.Manager) clock.Source {
	s, ok := m.Current()
	require.True(t, ok, "no source selected")
	return s
}

// checkInvariants verifies the properties that hold at every quiescent point
func checkInvariants(t *testing.T, m *cpm.Manager) {
	t.Helper()
	snap := m.Snapshot()
	if snap.Passes > 0 && !snap.Current.Empty() {
		require.Equal(t, 1, snap.Current.Count(), "current must hold exactly one source")
	}
	var locks uint32
	for _, c := range snap.Clients {
		want := c.Declared.Intersect(snap.Sources.SourcesInRange(c.MinFrequency, c.MaxFrequency))
		require.Equal(t, want, c.Acceptable, "stale mask for %s", c.Name)
		if c.HoldsLock {
			locks++
		}
		if c.Enabled && !snap.Pending {
			require.True(t, c.Acceptable.Overlaps(snap.Current), "%s enabled on an incompatible clock", c.Name)
		}
		if c.Waiting() && !c.Acceptable.Overlaps(snap.Current) {
			require.True(t, snap.Pending, "%s waits but no change is pending", c.Name)
		}
	}
	require.Equal(t, locks, snap.LockCount, "lock count out of step with lock holders")
}
