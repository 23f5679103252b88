package cpm_test

import (
	"testing"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	changes []cpm.Change
	passes  []cpm.Pass
}

func (o *countingObserver) ClockChanged(c cpm.Change) { o.changes = append(o.changes, c) }
func (o *countingObserver) PassCompleted(p cpm.Pass)  { o.passes = append(o.passes, p) }

func TestConfigureOrdering(t *testing.T) {
	var log []string
	m := cpm.New(newFakeChip(t, &log), 0, nil)
	r := newRecorder("R", &log)
	hr := register(t, m, r, false, src4MHz, src48MHz)
	h := newRecorder("H", &log)
	hh := register(t, m, h, true, src48MHz)

	_, err := m.EnableClock(hr)
	require.NoError(t, err)
	require.Equal(t, src4MHz, current(t, m))

	// raising: the running client is told before the switch
	log = nil
	_, err = m.EnableClock(hh)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"R:configure:48000000",
		"apply:SRC_48MHZ",
		"H:configure:48000000",
		"H:enabled",
	}, log)

	// lowering: the running client is told after the switch
	log = nil
	require.NoError(t, m.DisableClock(hh))
	assert.Equal(t, []string{
		"H:disabled",
		"apply:SRC_4MHZ",
		"R:configure:4000000",
	}, log)
	assert.Equal(t, 1, r.enabled)
	checkInvariants(t, m)
}

func TestReentrantEnableDefersPass(t *testing.T) {
	chip := newFakeChip(t, nil)
	obs := &countingObserver{}
	m := cpm.New(chip, 0, obs)

	a := newRecorder("A", nil)
	ha := register(t, m, a, false, src4MHz)
	b := newRecorder("B", nil)
	hb := register(t, m, b, false, src48MHz)

	nested := false
	a.onEnabled = func() {
		if nested {
			return
		}
		nested = true
		applied := len(chip.applied)
		assert.NotZero(t, m.LockCount(), "callback must run under the pass lock")
		_, err := m.EnableClock(hb)
		assert.NoError(t, err)
		assert.Len(t, chip.applied, applied, "nested request must not switch the clock")
		assert.True(t, m.Pending())
	}

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	assert.Equal(t, src4MHz, current(t, m))
	assert.Equal(t, 0, b.enabled)
	// A keeps running, so B stays queued with the cursor on it
	assert.True(t, m.Pending())
	assert.Equal(t, 1, m.Snapshot().Cursor)
	assert.Equal(t, uint32(0), m.LockCount())
	checkInvariants(t, m)

	require.NoError(t, m.DisableClock(ha))
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, 1, b.enabled)
	assert.False(t, m.Pending())
	assert.Len(t, obs.changes, 2)
	checkInvariants(t, m)
}

func TestSynchronousTransferInCallback(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	spi := newRecorder("spi", nil)
	h := register(t, m, spi, true, src16MHz)
	spi.onEnabled = func() {
		assert.NoError(t, m.DisableClock(h))
	}

	_, err := m.EnableClock(h)
	require.NoError(t, err)
	assert.Equal(t, 1, spi.enabled)
	assert.Equal(t, 1, spi.disabled)
	assert.Equal(t, uint32(0), m.LockCount())
	enabled, err := m.Enabled(h)
	require.NoError(t, err)
	assert.False(t, enabled)
	checkInvariants(t, m)
}

func TestRoundRobinServesDisjointClients(t *testing.T) {
	var log []string
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	clients := []*recorder{
		newRecorder("X", &log),
		newRecorder("Y", &log),
		newRecorder("Z", &log),
	}
	handles := []cpm.Handle{
		register(t, m, clients[0], true, src4MHz),
		register(t, m, clients[1], true, src48MHz),
		register(t, m, clients[2], true, src16MHz),
	}
	for _, h := range handles {
		_, err := m.EnableClock(h)
		require.NoError(t, err)
	}
	assert.Equal(t, src4MHz, current(t, m))
	assert.True(t, m.Pending())
	assert.Equal(t, clock.Mask(0), m.Snapshot().ChangeMask)

	// each release hands the clock to the next blocked client
	require.NoError(t, m.DisableClock(handles[0]))
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, 2, m.Snapshot().Cursor)
	assert.True(t, m.Pending())

	require.NoError(t, m.DisableClock(handles[1]))
	assert.Equal(t, src16MHz, current(t, m))
	assert.False(t, m.Pending())

	for _, c := range clients {
		assert.Equal(t, 1, c.enabled, c.name)
	}
	assert.Equal(t, []string{
		"X:configure:4000000", "X:enabled",
		"X:disabled", "Y:configure:48000000", "Y:enabled",
		"Y:disabled", "Z:configure:16000000", "Z:enabled",
	}, log)
	checkInvariants(t, m)
}

func TestPreferredBreaksTie(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	h := register(t, m, newRecorder("P", nil), true, src4MHz, src16MHz, src48MHz)
	require.NoError(t, m.SetPreferred(h, clock.MaskOf(src16MHz)))
	pref, err := m.Preferred(h)
	require.NoError(t, err)
	assert.Equal(t, clock.MaskOf(src16MHz), pref)

	_, err = m.EnableClock(h)
	require.NoError(t, err)
	assert.Equal(t, src16MHz, current(t, m))
}

func TestPreferenceOutsideCandidatesIsIgnored(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	h := register(t, m, newRecorder("P", nil), true, src4MHz, src16MHz)
	require.NoError(t, m.SetPreferred(h, clock.MaskOf(src48MHz)))

	_, err := m.EnableClock(h)
	require.NoError(t, err)
	assert.Equal(t, src4MHz, current(t, m))
}

func TestComputeMode(t *testing.T) {
	chip := newFakeChip(t, nil)
	require.NoError(t, chip.table.SetCompute("SRC_48MHZ"))
	m := cpm.New(chip, 0, nil)
	assert.ErrorIs(t, m.Sources().SetCompute("SRC_16MHZ"), clock.ErrTableFrozen)
	c := newRecorder("C", nil)
	hc := register(t, m, c, false, src4MHz, src48MHz)

	_, err := m.EnableClock(hc)
	require.NoError(t, err)
	assert.Equal(t, src4MHz, current(t, m))

	m.SetComputeMode(true)
	assert.True(t, m.ComputeMode())
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, []uint32{4000000, 48000000}, c.configured)

	// nested requests are counted
	m.SetComputeMode(true)
	m.SetComputeMode(false)
	assert.Equal(t, src48MHz, current(t, m))

	m.SetComputeMode(false)
	assert.False(t, m.ComputeMode())
	assert.Equal(t, src4MHz, current(t, m))

	// an unmatched release is ignored
	m.SetComputeMode(false)
	assert.False(t, m.ComputeMode())
	checkInvariants(t, m)
}

func TestComputeSourceMustBeCompatible(t *testing.T) {
	chip := newFakeChip(t, nil)
	require.NoError(t, chip.table.SetCompute("SRC_48MHZ"))
	m := cpm.New(chip, 0, nil)
	h := register(t, m, newRecorder("slow", nil), false, src4MHz, src16MHz)
	_, err := m.EnableClock(h)
	require.NoError(t, err)

	m.SetComputeMode(true)
	assert.Equal(t, src4MHz, current(t, m))
}

func TestIdleSource(t *testing.T) {
	chip := newFakeChip(t, nil)
	require.NoError(t, chip.table.SetCompute("SRC_48MHZ"))
	require.NoError(t, chip.table.SetIdle("SRC_16MHZ"))
	m := cpm.New(chip, 0, nil)

	m.SetComputeMode(true)
	assert.Equal(t, src48MHz, current(t, m))
	m.SetComputeMode(false)
	assert.Equal(t, src16MHz, current(t, m))
}

func TestIntermediateAvoidance(t *testing.T) {
	chip := newFakeChip(t, nil)
	// leaving 16 MHz for 4 MHz passes through the 115 kHz oscillator
	require.NoError(t, chip.table.AddTransition([]string{"SRC_16MHZ"}, []string{"SRC_115K"}, []string{"SRC_4MHZ"}))
	m := cpm.New(chip, 0, nil)
	r := newRecorder("R", nil)
	hr := register(t, m, r, false, src4MHz, src16MHz)
	require.NoError(t, m.SetPreferred(hr, clock.MaskOf(src16MHz)))

	_, err := m.EnableClock(hr)
	require.NoError(t, err)
	require.Equal(t, src16MHz, current(t, m))

	// without the preference 4 MHz would win, but R can not live through
	// the 115 kHz detour
	require.NoError(t, m.SetPreferred(hr, 0))
	m.SetComputeMode(true)
	m.SetComputeMode(false)
	assert.Equal(t, src16MHz, current(t, m))
	assert.Len(t, chip.applied, 1)

	// once R accepts the detour the cheaper source is reachable
	require.NoError(t, m.SetAcceptableSources(hr, clock.MaskOf(src115K, src4MHz, src16MHz)))
	m.SetComputeMode(true)
	m.SetComputeMode(false)
	assert.Equal(t, src115K, current(t, m))
	checkInvariants(t, m)
}

func TestMaskChangeStopsRunningClient(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	r := newRecorder("R", nil)
	hr := register(t, m, r, false, src4MHz, src16MHz, src48MHz)

	_, err := m.EnableClock(hr)
	require.NoError(t, err)
	require.Equal(t, src4MHz, current(t, m))

	require.NoError(t, m.SetMinFrequency(hr, 10000000))
	assert.Equal(t, src16MHz, current(t, m))
	assert.Equal(t, 2, r.enabled)
	assert.Equal(t, clock.MaskOf(src16MHz, src48MHz), m.Snapshot().LockFreeMask)
	checkInvariants(t, m)
}

func TestChangeClockRunsPendingPass(t *testing.T) {
	obs := &countingObserver{}
	m := cpm.New(newFakeChip(t, nil), 0, obs)

	// nothing pending, nothing to do
	m.ChangeClock()
	assert.Empty(t, obs.passes)

	hx := register(t, m, newRecorder("X", nil), true, src4MHz)
	hy := register(t, m, newRecorder("Y", nil), true, src48MHz)
	_, err := m.EnableClock(hx)
	require.NoError(t, err)
	_, err = m.EnableClock(hy)
	require.NoError(t, err)
	passes := len(obs.passes)

	// the lock is still held, so the trigger is a no-op
	m.ChangeClock()
	assert.Len(t, obs.passes, passes)
	assert.True(t, m.Pending())

	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, src48MHz, current(t, m))
	require.NotEmpty(t, obs.passes)
	last := obs.passes[len(obs.passes)-1]
	assert.Equal(t, src48MHz, last.Selected)
	assert.True(t, last.Changed)
	assert.Equal(t, uint32(48000000), obs.changes[len(obs.changes)-1].ToFrequency)
}

func TestLockClientWaitsForRunningClient(t *testing.T) {
	chip := newFakeChip(t, nil)
	obs := &countingObserver{}
	m := cpm.New(chip, 0, obs)
	a := newRecorder("A", nil)
	ha := register(t, m, a, false, src4MHz)
	b := newRecorder("B", nil)
	hb := register(t, m, b, true, src48MHz)

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	require.Equal(t, src4MHz, current(t, m))
	before := len(obs.passes)

	// A runs without the lock and was never asked to yield, so B waits
	_, err = m.EnableClock(hb)
	require.NoError(t, err)
	assert.True(t, m.Pending())
	assert.Equal(t, uint32(0), m.LockCount())
	assert.Equal(t, src4MHz, current(t, m))
	assert.Equal(t, 0, b.enabled)
	assert.Len(t, chip.applied, 1)
	assert.LessOrEqual(t, len(obs.passes)-before, m.Capacity()+1)
	last := obs.passes[len(obs.passes)-1]
	assert.False(t, last.Changed)
	assert.True(t, last.Pending)
	checkInvariants(t, m)

	// retrying changes nothing while A runs
	before = len(obs.passes)
	m.ChangeClock()
	assert.LessOrEqual(t, len(obs.passes)-before, m.Capacity()+1)
	assert.True(t, m.Pending())
	assert.Equal(t, src4MHz, current(t, m))

	require.NoError(t, m.DisableClock(ha))
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, 1, b.enabled)
	assert.Equal(t, uint32(1), m.LockCount())
	assert.False(t, m.Pending())
	assert.Equal(t, []uint32{4000000}, a.configured)
	checkInvariants(t, m)
}
