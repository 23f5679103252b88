package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerMetrics sync.Once

const (
	CPMNamespace = "clockpm"
	CPMSubsystem = "cpm"
)

var (
	// SystemFrequency is the frequency of the selected system clock source
	SystemFrequency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "system_frequency_hz",
			Help:      "",
		}, []string{"board"})

	// SourceSelected is 1 for the selected source and 0 for every other one
	SourceSelected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "source_selected",
			Help:      "1 = selected, 0 = idle",
		}, []string{"board", "source"})

	ClockSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "clock_switches_total",
			Help:      "",
		}, []string{"board", "from", "to"})

	ArbitrationPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "arbitration_passes_total",
			Help:      "",
		}, []string{"board"})

	LockCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "lock_count",
			Help:      "",
		}, []string{"board"})

	ChangePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "change_pending",
			Help:      "0 = settled, 1 = a clock change is waiting",
		}, []string{"board"})

	// ClientState shows every registered clock client
	ClientState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "client_state",
			Help:      "0 = DISABLED, 1 = WAITING, 2 = RUNNING",
		}, []string{"board", "client"})

	SourceResidency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: CPMNamespace,
			Subsystem: CPMSubsystem,
			Name:      "source_residency_seconds",
			Help:      "mean time spent on a source before switching away",
		}, []string{"board", "source"})
)

// RegisterMetrics ...
func RegisterMetrics(boardName string) {
	registerMetrics.Do(func() {
		prometheus.MustRegister(SystemFrequency)
		prometheus.MustRegister(SourceSelected)
		prometheus.MustRegister(ClockSwitches)
		prometheus.MustRegister(ArbitrationPasses)
		prometheus.MustRegister(LockCount)
		prometheus.MustRegister(ChangePending)
		prometheus.MustRegister(ClientState)
		prometheus.MustRegister(SourceResidency)

		// Including these stats kills performance when Prometheus polls with multiple targets
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prometheus.Unregister(collectors.NewGoCollector())

		BoardName = boardName
	})
}
