// Package indicator provides technical indicator calculations over candle
// series.
//
// All functions are pure: they take an ordered series (or its close column)
// and return a value slice aligned to the input length. Indices without
// enough history are undefined (NaN); use Defined to test a value before
// consuming it. A period longer than the input yields an all-undefined
// output, never an error. Re-running on the same input always produces the
// same output; there is no hidden state.
package indicator

import "math"

// Undefined returns the sentinel for "insufficient history".
func Undefined() float64 { return math.NaN() }

// Defined reports whether an indicator value is usable.
func Defined(v float64) bool { return !math.IsNaN(v) }

// undefinedSeries returns a slice of n undefined values.
func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
