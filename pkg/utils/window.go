package utils

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Window is a fixed size ring of samples with weighted statistics over the
// populated part.
type Window struct {
	data      []float64
	weights   []float64
	size      int
	nextIndex int
	full      bool
}

// NewWindow creates a Window holding the last size samples, all weighted 1
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	weights := make([]float64, size)
	for i := range weights {
		weights[i] = 1
	}
	return &Window{
		data:    make([]float64, size),
		weights: weights,
		size:    size,
	}
}

func (w *Window) samples() ([]float64, []float64) {
	if w.full {
		return w.data, w.weights
	}
	return w.data[:w.nextIndex], w.weights[:w.nextIndex]
}

// Len returns the number of samples held
func (w *Window) Len() int {
	if w.full {
		return w.size
	}
	return w.nextIndex
}

// Insert adds v, overwriting the oldest sample once the window is full
func (w *Window) Insert(v float64) {
	w.data[w.nextIndex] = v
	w.nextIndex = (w.nextIndex + 1) % w.size
	if !w.full && w.nextIndex == 0 {
		w.full = true
	}
}

// LastInserted returns the newest sample
func (w *Window) LastInserted() float64 {
	lastIndex := w.nextIndex - 1
	if lastIndex < 0 {
		lastIndex = w.size - 1
	}
	return w.data[lastIndex]
}

// Max returns the largest sample, 0 for an empty window
func (w *Window) Max() float64 {
	data, _ := w.samples()
	var m float64
	for i, f := range data {
		if i == 0 {
			m = f
			continue
		}
		m = math.Max(m, f)
	}
	return m
}

// Mean returns the weighted mean, NaN for an empty window
func (w *Window) Mean() float64 {
	data, weights := w.samples()
	return stat.Mean(data, weights)
}

// Median returns the weighted median
func (w *Window) Median() float64 {
	data, weights := w.samples()
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	w2 := make([]float64, len(weights))
	copy(w2, weights)
	// Quantile wants sorted samples
	stat.SortWeighted(sorted, w2)
	return stat.Quantile(0.5, stat.Empirical, sorted, w2)
}

// StdDev returns the weighted standard deviation
func (w *Window) StdDev() float64 {
	data, weights := w.samples()
	return stat.StdDev(data, weights)
}
