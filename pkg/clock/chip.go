package clock

// Chip is the platform side of clock management. Implementations own the
// oscillator and PLL registers; the arbiter only ever sees source indexes.
type Chip interface {
	// Sources returns the descriptor table of the chip
	Sources() *Table
	// MaxFrequency is the upper bound used for fresh clients
	MaxFrequency() uint32
	// FrequencyFor returns the output frequency of a source in Hz
	FrequencyFor(s Source) uint32
	// ApplySystemClock switches the system clock to s and blocks until the
	// new source reports ready.
	ApplySystemClock(s Source)
	// SystemFrequency returns the frequency the core currently runs at
	SystemFrequency() uint32
	// Intermediates lists the transitions that leave the current source
	// through another source first.
	Intermediates(current Mask) []Transition
}
