package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseFrequency reads a frequency written as a plain number of hertz or
// with an SI suffix ("115200", "4.3M", "32768Hz", "48MHz", "40M").
func ParseFrequency(s string) (uint32, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(strings.TrimSuffix(v, "Hz"), "hz")
	if v == "" {
		return 0, fmt.Errorf("empty frequency")
	}
	// resource quantities use a lower case k for kilo
	v = strings.Replace(v, "K", "k", 1)
	q, err := resource.ParseQuantity(v)
	if err != nil {
		return 0, fmt.Errorf("frequency %q: %w", s, err)
	}
	hz := q.Value()
	if hz < 0 || hz > math.MaxUint32 {
		return 0, fmt.Errorf("frequency %q out of range", s)
	}
	return uint32(hz), nil
}

// FormatFrequency renders hz with the largest unit that keeps it above one
func FormatFrequency(hz uint32) string {
	switch {
	case hz >= 1000000:
		return trimFloat(float64(hz)/1e6) + " MHz"
	case hz >= 1000:
		return trimFloat(float64(hz)/1e3) + " kHz"
	default:
		return strconv.FormatUint(uint64(hz), 10) + " Hz"
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
