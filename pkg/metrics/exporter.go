package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
)

// BoardName ...
var BoardName string // to be initialized on startup or via setter

// client_state values
const (
	ClientDisabled = 0
	ClientWaiting  = 1
	ClientRunning  = 2
)

// UpdateClockChangeMetrics records a completed switch
func UpdateClockChangeMetrics(table *clock.Table, c cpm.Change) {
	SystemFrequency.With(prometheus.Labels{"board": BoardName}).Set(float64(c.ToFrequency))
	for _, s := range c.From.Sources() {
		SourceSelected.With(prometheus.Labels{"board": BoardName, "source": table.Name(s)}).Set(0)
	}
	SourceSelected.With(prometheus.Labels{"board": BoardName, "source": table.Name(c.To)}).Set(1)
	ClockSwitches.With(prometheus.Labels{
		"board": BoardName, "from": table.Names(c.From), "to": table.Name(c.To)}).Inc()
}

// UpdatePassMetrics counts one arbitration pass
func UpdatePassMetrics(p cpm.Pass) {
	ArbitrationPasses.With(prometheus.Labels{"board": BoardName}).Inc()
	pending := 0.0
	if p.Pending {
		pending = 1.0
	}
	ChangePending.With(prometheus.Labels{"board": BoardName}).Set(pending)
}

// UpdateSnapshotMetrics refreshes the gauges derived from a manager snapshot
func UpdateSnapshotMetrics(s cpm.Snapshot) {
	SystemFrequency.With(prometheus.Labels{"board": BoardName}).Set(float64(s.Frequency))
	LockCount.With(prometheus.Labels{"board": BoardName}).Set(float64(s.LockCount))
	pending := 0.0
	if s.Pending {
		pending = 1.0
	}
	ChangePending.With(prometheus.Labels{"board": BoardName}).Set(pending)
	for _, c := range s.Clients {
		UpdateClientStateMetrics(c)
	}
}

// UpdateClientStateMetrics ...
func UpdateClientStateMetrics(c cpm.ClientState) {
	val := ClientDisabled
	switch {
	case c.Served():
		val = ClientRunning
	case c.Enabled:
		val = ClientWaiting
	}
	ClientState.With(prometheus.Labels{"board": BoardName, "client": c.Name}).Set(float64(val))
}

// UpdateResidencyMetrics ...
func UpdateResidencyMetrics(source string, meanSeconds float64) {
	SourceResidency.With(prometheus.Labels{"board": BoardName, "source": source}).Set(meanSeconds)
}
