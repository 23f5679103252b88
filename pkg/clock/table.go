package clock

import (
	"errors"
	"fmt"
	"strings"
)

// SourceInfo is one row of a chip's source table
type SourceInfo struct {
	Name      string `json:"name"`
	Frequency uint32 `json:"frequency"`
}

// Transition says that leaving any source of From for any source of Ends
// passes through the sources of Via on the way.
type Transition struct {
	From Mask
	Via  Mask
	Ends Mask
}

// Table is the chip specific clock descriptor: the ordered list of sources
// (lowest power first) plus the policy masks the arbiter consults. The
// policy is set while the chip is built; a table is frozen once a clock
// manager uses it and the policy setters fail from then on.
type Table struct {
	entries     []SourceInfo
	byName      map[string]Source
	compute     Mask
	idle        Source
	hasIdle     bool
	transitions []Transition
	frozen      bool
}

// ErrTableFrozen is returned by the policy setters once the table is in use
var ErrTableFrozen = errors.New("clock table is in use")

// NewTable validates the entries and builds a table in declaration order
func NewTable(entries []SourceInfo) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("clock table has no sources")
	}
	if len(entries) > MaxSources {
		return nil, fmt.Errorf("clock table has %d sources, at most %d supported", len(entries), MaxSources)
	}
	t := &Table{
		entries: make([]SourceInfo, len(entries)),
		byName:  make(map[string]Source, len(entries)),
	}
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("clock source %d has no name", i)
		}
		if e.Frequency == 0 {
			return nil, fmt.Errorf("clock source %s has zero frequency", name)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("clock source %s declared twice", name)
		}
		t.entries[i] = SourceInfo{Name: name, Frequency: e.Frequency}
		t.byName[name] = Source(i)
	}
	return t, nil
}

// MustNewTable is NewTable for static tables; it panics on error
func MustNewTable(entries []SourceInfo) *Table {
	t, err := NewTable(entries)
	if err != nil {
		panic(fmt.Sprintf("invalid clock table: %s", err))
	}
	return t
}

// Len ...
func (t *Table) Len() int {
	return len(t.entries)
}

// All returns the mask of every declared source
func (t *Table) All() Mask {
	return AllOf(len(t.entries))
}

// Valid reports whether s is declared in the table
func (t *Table) Valid(s Source) bool {
	return int(s) < len(t.entries)
}

// Name returns the declared name of s
func (t *Table) Name(s Source) string {
	if !t.Valid(s) {
		return fmt.Sprintf("source%d", s)
	}
	return t.entries[s].Name
}

// Lookup finds a source by name
func (t *Table) Lookup(name string) (Source, bool) {
	s, ok := t.byName[strings.TrimSpace(name)]
	return s, ok
}

// MaskByName builds a mask from source names
func (t *Table) MaskByName(names ...string) (Mask, error) {
	var m Mask
	for _, n := range names {
		s, ok := t.Lookup(n)
		if !ok {
			return 0, fmt.Errorf("unknown clock source %q", n)
		}
		m |= s.Bit()
	}
	return m, nil
}

// Names renders a mask with source names, e.g. "RC1M|DFLL"
func (t *Table) Names(m Mask) string {
	if m.Empty() {
		return "none"
	}
	names := make([]string, 0, m.Count())
	for _, s := range m.Intersect(t.All()).Sources() {
		names = append(names, t.entries[s].Name)
	}
	return strings.Join(names, "|")
}

// Entries returns a copy of the source rows
func (t *Table) Entries() []SourceInfo {
	out := make([]SourceInfo, len(t.entries))
	copy(out, t.entries)
	return out
}

// FrequencyFor returns the output frequency of s in Hz, 0 if undeclared
func (t *Table) FrequencyFor(s Source) uint32 {
	if !t.Valid(s) {
		return 0
	}
	return t.entries[s].Frequency
}

// MaxFrequency is the fastest source of the table
func (t *Table) MaxFrequency() uint32 {
	var max uint32
	for _, e := range t.entries {
		if e.Frequency > max {
			max = e.Frequency
		}
	}
	return max
}

// SourcesInRange maps a frequency range onto the sources whose output falls
// inside [min, max]. An inverted range matches nothing.
func (t *Table) SourcesInRange(min, max uint32) Mask {
	if min > max {
		return 0
	}
	var m Mask
	for i, e := range t.entries {
		if e.Frequency >= min && e.Frequency <= max {
			m |= Source(i).Bit()
		}
	}
	return m
}

// SetCompute declares the performance sources used by compute mode
func (t *Table) SetCompute(names ...string) error {
	if t.frozen {
		return fmt.Errorf("compute sources: %w", ErrTableFrozen)
	}
	m, err := t.MaskByName(names...)
	if err != nil {
		return fmt.Errorf("compute sources: %w", err)
	}
	t.compute = m
	return nil
}

// Compute returns the performance sources, empty when the chip has none
func (t *Table) Compute() Mask {
	return t.compute
}

// SetIdle declares the source selected when no client constrains the clock
func (t *Table) SetIdle(name string) error {
	if t.frozen {
		return fmt.Errorf("idle source: %w", ErrTableFrozen)
	}
	s, ok := t.Lookup(name)
	if !ok {
		return fmt.Errorf("idle source: unknown clock source %q", name)
	}
	t.idle, t.hasIdle = s, true
	return nil
}

// Idle returns the idle source; ok is false when the chip declares none
func (t *Table) Idle() (Source, bool) {
	return t.idle, t.hasIdle
}

// AddTransition declares that moving from any of from to any of ends goes
// through via.
func (t *Table) AddTransition(from, via, ends []string) error {
	if t.frozen {
		return fmt.Errorf("transition: %w", ErrTableFrozen)
	}
	f, err := t.MaskByName(from...)
	if err != nil {
		return fmt.Errorf("transition from: %w", err)
	}
	v, err := t.MaskByName(via...)
	if err != nil {
		return fmt.Errorf("transition via: %w", err)
	}
	e, err := t.MaskByName(ends...)
	if err != nil {
		return fmt.Errorf("transition ends: %w", err)
	}
	if v.Empty() || e.Empty() {
		return fmt.Errorf("transition needs at least one via and one end source")
	}
	t.transitions = append(t.transitions, Transition{From: f, Via: v, Ends: e})
	return nil
}

// Freeze locks the policy. The arbiter caches masks derived from it, so a
// table must not change under a running manager.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze was called
func (t *Table) Frozen() bool {
	return t.frozen
}

// Intermediates returns the transitions that apply when leaving current
func (t *Table) Intermediates(current Mask) []Transition {
	var out []Transition
	for _, tr := range t.transitions {
		if tr.From.Overlaps(current) {
			out = append(out, tr)
		}
	}
	return out
}
