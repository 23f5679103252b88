// Package clock describes the system clock sources a chip can run from and
// the bitset used to express which of them a peripheral can tolerate.
package clock

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxSources is the largest number of sources a Mask can address
const MaxSources = 32

// Source identifies one entry of a chip's source table.
// Lower values are cheaper in power.
type Source uint8

// Bit returns the single-source mask for s
func (s Source) Bit() Mask {
	return Mask(1) << s
}

// Mask is a set of clock sources
type Mask uint32

// MaskOf builds a mask holding the given sources
func MaskOf(sources ...Source) Mask {
	var m Mask
	for _, s := range sources {
		m |= s.Bit()
	}
	return m
}

// AllOf returns the mask holding the first n sources
func AllOf(n int) Mask {
	if n >= MaxSources {
		return ^Mask(0)
	}
	return Mask(1)<<uint(n) - 1
}

// Has reports whether s is in the set
func (m Mask) Has(s Source) bool {
	return m&s.Bit() != 0
}

// Intersect ...
func (m Mask) Intersect(o Mask) Mask {
	return m & o
}

// Union ...
func (m Mask) Union(o Mask) Mask {
	return m | o
}

// Without removes the sources of o from m
func (m Mask) Without(o Mask) Mask {
	return m &^ o
}

// Overlaps reports whether the two sets share a source
func (m Mask) Overlaps(o Mask) bool {
	return m&o != 0
}

// Empty ...
func (m Mask) Empty() bool {
	return m == 0
}

// Count returns the number of sources in the set
func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Lowest returns the lowest-power source in the set.
// ok is false for the empty set.
func (m Mask) Lowest() (s Source, ok bool) {
	if m == 0 {
		return 0, false
	}
	return Source(bits.TrailingZeros32(uint32(m))), true
}

// Sources lists the members in power order
func (m Mask) Sources() []Source {
	out := make([]Source, 0, m.Count())
	for rest := m; rest != 0; rest &= rest - 1 {
		out = append(out, Source(bits.TrailingZeros32(uint32(rest))))
	}
	return out
}

// String renders the mask as a list of source indexes, e.g. "{1,3}"
func (m Mask) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range m.Sources() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(s)))
	}
	b.WriteByte('}')
	return b.String()
}
