package cpm_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	var log []string
	chip := newFakeChip(t, &log)
	m := cpm.New(chip, 0, nil)

	x := newRecorder("X", &log)
	hx := register(t, m, x, true, src4MHz, src48MHz)

	// A: first request selects the lowest power compatible source
	freq, err := m.EnableClock(hx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000), freq)
	assert.Equal(t, src4MHz, current(t, m))
	assert.Equal(t, []clock.Source{src4MHz}, chip.applied)
	assert.Equal(t, 1, x.enabled)
	assert.Equal(t, uint32(1), m.LockCount())
	checkInvariants(t, m)

	// B: an incompatible lock free client waits behind the lock
	y := newRecorder("Y", &log)
	hy := register(t, m, y, false, src48MHz)
	freq, err = m.EnableClock(hy)
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000), freq)
	assert.True(t, m.Pending())
	assert.Equal(t, clock.MaskOf(src48MHz), m.Snapshot().ChangeMask)
	assert.Equal(t, 0, y.enabled)
	assert.Equal(t, []clock.Source{src4MHz}, chip.applied)
	checkInvariants(t, m)

	// C: releasing the lock lets the pending change through
	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, uint32(0), m.LockCount())
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, []clock.Source{src4MHz, src48MHz}, chip.applied)
	assert.Equal(t, 1, y.enabled)
	running, err := m.Running(hy)
	require.NoError(t, err)
	assert.True(t, running)
	assert.False(t, m.Pending())
	assert.Equal(t, 1, x.disabled)
	checkInvariants(t, m)

	// D: unknown handles are rejected without touching state
	opts := []cmp.Option{
		cmpopts.IgnoreFields(cpm.Snapshot{}, "Sources"),
		cmpopts.IgnoreUnexported(cpm.Handle{}),
	}
	before := m.Snapshot()
	other := cpm.New(newFakeChip(t, nil), 0, nil)
	foreign, err := other.Register(newRecorder("F", nil))
	require.NoError(t, err)
	for _, h := range []cpm.Handle{{}, foreign} {
		_, err = m.EnableClock(h)
		assert.True(t, errors.Is(err, cpm.ErrInvalidHandle), "handle %s", h)
		assert.True(t, errors.Is(m.DisableClock(h), cpm.ErrInvalidHandle))
		assert.True(t, errors.Is(m.SetMinFrequency(h, 1), cpm.ErrInvalidHandle))
		_, err = m.ClockMask(h)
		assert.True(t, errors.Is(err, cpm.ErrInvalidHandle))
	}
	if diff := cmp.Diff(before, m.Snapshot(), opts...); diff != "" {
		t.Errorf("state changed by invalid handles (-before +after):\n%s", diff)
	}
}

func TestRegisterCapacity(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 2, nil)
	assert.Equal(t, 2, m.Capacity())
	for i := 0; i < 2; i++ {
		h, err := m.Register(newRecorder("ok", nil))
		require.NoError(t, err)
		assert.True(t, h.Valid())
	}
	h, err := m.Register(newRecorder("one-too-many", nil))
	assert.True(t, errors.Is(err, cpm.ErrOutOfCapacity))
	assert.False(t, h.Valid())

	_, err = m.Register(nil)
	assert.Error(t, err)
}

func TestRegisterDefaults(t *testing.T) {
	chip := newFakeChip(t, nil)
	m := cpm.New(chip, 0, nil)
	h, err := m.Register(newRecorder("fresh", nil))
	require.NoError(t, err)

	needLock, err := m.NeedLock(h)
	require.NoError(t, err)
	assert.True(t, needLock)
	mask, err := m.ClockMask(h)
	require.NoError(t, err)
	assert.Equal(t, chip.table.All(), mask)
	max, err := m.MaxFrequency(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000000), max)
	enabled, err := m.Enabled(h)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestMaskConsistency(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	h := register(t, m, newRecorder("c", nil), true)

	tests := []struct {
		name string
		set  func() error
		want clock.Mask
	}{
		{"declared list", func() error { return m.SetAcceptableSources(h, clock.MaskOf(src4MHz, src16MHz, src48MHz)) },
			clock.MaskOf(src4MHz, src16MHz, src48MHz)},
		{"min frequency", func() error { return m.SetMinFrequency(h, 10000000) },
			clock.MaskOf(src16MHz, src48MHz)},
		{"max frequency", func() error { return m.SetMaxFrequency(h, 20000000) },
			clock.MaskOf(src16MHz)},
		{"inverted range", func() error { return m.SetMinFrequency(h, 30000000) },
			0},
		{"range restored", func() error { return m.SetMinFrequency(h, 0) },
			clock.MaskOf(src4MHz, src16MHz)},
		{"undeclared bits dropped", func() error { return m.SetAcceptableSources(h, clock.MaskOf(src115K, 20)) },
			clock.MaskOf(src115K)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.set())
			mask, err := m.ClockMask(h)
			require.NoError(t, err)
			assert.Equal(t, tc.want, mask)
			checkInvariants(t, m)
		})
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	chip := newFakeChip(t, nil)
	m := cpm.New(chip, 0, nil)
	x := newRecorder("X", nil)
	hx := register(t, m, x, true, src16MHz)

	first, err := m.EnableClock(hx)
	require.NoError(t, err)
	second, err := m.EnableClock(hx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, src16MHz, current(t, m))
	assert.Equal(t, uint32(1), m.LockCount())
	assert.Equal(t, 2, x.enabled)
	assert.Len(t, chip.applied, 1)

	// a single disable releases the single lock
	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, uint32(0), m.LockCount())
	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, uint32(0), m.LockCount())
	assert.Equal(t, 1, x.disabled)
}

func TestWaitingClientIsNotReassured(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	hx := register(t, m, newRecorder("X", nil), true, src4MHz)
	y := newRecorder("Y", nil)
	hy := register(t, m, y, true, src48MHz)

	_, err := m.EnableClock(hx)
	require.NoError(t, err)
	_, err = m.EnableClock(hy)
	require.NoError(t, err)
	_, err = m.EnableClock(hy)
	require.NoError(t, err)
	assert.Equal(t, 0, y.enabled)

	// Y never took the lock, so disabling it must not release X's
	require.NoError(t, m.DisableClock(hy))
	assert.Equal(t, uint32(1), m.LockCount())
	checkInvariants(t, m)

	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, uint32(0), m.LockCount())
	// nobody is left, the cheapest source wins
	assert.Equal(t, src115K, current(t, m))
	checkInvariants(t, m)
}

func TestLockFreeClientJoinsRunningSet(t *testing.T) {
	chip := newFakeChip(t, nil)
	m := cpm.New(chip, 0, nil)
	a := newRecorder("A", nil)
	ha := register(t, m, a, false, src4MHz, src16MHz)
	b := newRecorder("B", nil)
	hb := register(t, m, b, false, src16MHz, src4MHz, src48MHz)

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	assert.Equal(t, src4MHz, current(t, m))

	_, err = m.EnableClock(hb)
	require.NoError(t, err)
	assert.Equal(t, 1, b.enabled)
	assert.Equal(t, uint32(0), m.LockCount())
	assert.Equal(t, clock.MaskOf(src4MHz, src16MHz), m.Snapshot().LockFreeMask)
	assert.Len(t, chip.applied, 1)

	// the departing client no longer narrows the running set
	require.NoError(t, m.DisableClock(ha))
	assert.Equal(t, clock.MaskOf(src4MHz, src16MHz, src48MHz), m.Snapshot().LockFreeMask)
	checkInvariants(t, m)
}

func TestLockClientDefersBehindPendingChange(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	hx := register(t, m, newRecorder("X", nil), true, src4MHz)
	hy := register(t, m, newRecorder("Y", nil), true, src48MHz)
	z := newRecorder("Z", nil)
	hz := register(t, m, z, true, src4MHz, src48MHz)

	_, err := m.EnableClock(hx)
	require.NoError(t, err)
	_, err = m.EnableClock(hy)
	require.NoError(t, err)
	require.True(t, m.Pending())

	// Z could run now but a change is already queued, so it waits for it
	_, err = m.EnableClock(hz)
	require.NoError(t, err)
	assert.Equal(t, 0, z.enabled)
	assert.Equal(t, clock.MaskOf(src48MHz), m.Snapshot().ChangeMask)

	require.NoError(t, m.DisableClock(hx))
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, 1, z.enabled)
	assert.Equal(t, uint32(2), m.LockCount())
	checkInvariants(t, m)
}

func TestNeedLockChangeOnRunningClient(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	a := newRecorder("A", nil)
	ha := register(t, m, a, false, src4MHz)
	b := newRecorder("B", nil)
	hb := register(t, m, b, true, src48MHz)

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	require.Equal(t, src4MHz, current(t, m))

	// A keeps its clock and now pins it with a lock
	require.NoError(t, m.SetNeedLock(ha, true))
	snap := m.Snapshot()
	assert.True(t, snap.Clients[0].HoldsLock)
	assert.False(t, snap.Clients[0].Running)
	assert.Equal(t, uint32(1), snap.LockCount)
	assert.Equal(t, clock.MaskOf(src115K, src4MHz, src16MHz, src48MHz), snap.LockFreeMask)

	_, err = m.EnableClock(hb)
	require.NoError(t, err)
	require.NoError(t, m.DisableClock(hb))
	assert.Equal(t, src4MHz, current(t, m))
	assert.Equal(t, 0, b.enabled)
	assert.Equal(t, 1, a.enabled)
	assert.Equal(t, uint32(1), m.LockCount())
	checkInvariants(t, m)

	require.NoError(t, m.DisableClock(ha))
	assert.Equal(t, uint32(0), m.LockCount())
	assert.Equal(t, 1, a.disabled)
	checkInvariants(t, m)
}

func TestNeedLockChangeOnLockHolder(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	a := newRecorder("A", nil)
	ha := register(t, m, a, true, src4MHz, src16MHz)
	b := newRecorder("B", nil)
	hb := register(t, m, b, true, src48MHz)

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	_, err = m.EnableClock(hb)
	require.NoError(t, err)
	require.True(t, m.Pending())

	// the lock is released but A, now running, still keeps B out
	require.NoError(t, m.SetNeedLock(ha, false))
	snap := m.Snapshot()
	assert.False(t, snap.Clients[0].HoldsLock)
	assert.True(t, snap.Clients[0].Running)
	assert.Equal(t, uint32(0), snap.LockCount)
	assert.Equal(t, clock.MaskOf(src4MHz, src16MHz), snap.LockFreeMask)
	assert.True(t, snap.Pending)
	assert.Equal(t, src4MHz, current(t, m))
	assert.Equal(t, 1, a.enabled)
	checkInvariants(t, m)

	require.NoError(t, m.DisableClock(ha))
	assert.Equal(t, src48MHz, current(t, m))
	assert.Equal(t, 1, b.enabled)
	assert.Equal(t, 1, a.enabled)
	assert.Equal(t, []uint32{4000000}, a.configured)
	assert.Equal(t, uint32(1), m.LockCount())
	checkInvariants(t, m)
}

func TestMaskChangeOnLockHolderMarksPending(t *testing.T) {
	m := cpm.New(newFakeChip(t, nil), 0, nil)
	a := newRecorder("A", nil)
	ha := register(t, m, a, true, src4MHz)

	_, err := m.EnableClock(ha)
	require.NoError(t, err)
	require.Equal(t, src4MHz, current(t, m))

	require.NoError(t, m.SetAcceptableSources(ha, clock.MaskOf(src48MHz)))
	assert.True(t, m.Pending())
	checkInvariants(t, m)

	// the lock still pins the clock
	m.ChangeClock()
	assert.Equal(t, src4MHz, current(t, m))

	// releasing the lock lets the queued change through
	require.NoError(t, m.SetNeedLock(ha, false))
	assert.Equal(t, src48MHz, current(t, m))
	assert.False(t, m.Pending())
	assert.Equal(t, 2, a.enabled)
	assert.Equal(t, []uint32{4000000, 48000000}, a.configured)
	checkInvariants(t, m)
}
