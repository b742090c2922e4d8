// Package align merges indicator series computed on coarser timeframes onto
// a finer base-timeframe index, and derives lookback (value-N-bars-ago)
// columns on the base series.
package align

import (
	"fmt"
	"math"
	"time"
)

// FFill joins one source column onto the base timestamp index with
// forward-fill semantics: the aligned value at base timestamp T is the last
// source value whose timestamp is <= T. Base timestamps before the first
// source timestamp are undefined.
//
// Both indexes must be strictly increasing; the join is a single merge
// sweep, O(len(base)+len(srcTS)).
func FFill(base []time.Time, srcTS []time.Time, srcVals []float64) []float64 {
	out := make([]float64, len(base))
	j := -1
	for i, ts := range base {
		for j+1 < len(srcTS) && !srcTS[j+1].After(ts) {
			j++
		}
		if j < 0 {
			out[i] = math.NaN()
		} else {
			out[i] = srcVals[j]
		}
	}
	return out
}

// Frame is a base-timeframe timestamp index with named value columns
// aligned to it.
type Frame struct {
	TS      []time.Time
	columns map[string][]float64
	order   []string
}

// NewFrame creates an empty frame over the given base index.
func NewFrame(ts []time.Time) *Frame {
	return &Frame{TS: ts, columns: make(map[string][]float64)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.TS) }

// Set attaches a column already aligned to the base index.
func (f *Frame) Set(name string, vals []float64) error {
	if len(vals) != len(f.TS) {
		return fmt.Errorf("align: column %q has %d values for %d rows", name, len(vals), len(f.TS))
	}
	if _, exists := f.columns[name]; !exists {
		f.order = append(f.order, name)
	}
	f.columns[name] = vals
	return nil
}

// SetAligned forward-fills a source series onto the base index and attaches
// it as a column. A nil/empty source is allowed: the column is defined as
// all-undefined rather than failing the whole frame; callers decide
// whether that is fatal for their purpose.
func (f *Frame) SetAligned(name string, srcTS []time.Time, srcVals []float64) {
	if len(srcTS) == 0 {
		undef := make([]float64, len(f.TS))
		for i := range undef {
			undef[i] = math.NaN()
		}
		f.columns[name] = undef
	} else {
		f.columns[name] = FFill(f.TS, srcTS, srcVals)
	}
	for _, n := range f.order {
		if n == name {
			return
		}
	}
	f.order = append(f.order, name)
}

// Column returns a named column, or nil if absent.
func (f *Frame) Column(name string) []float64 { return f.columns[name] }

// Value returns the column value at row i. ok is false when the column is
// absent or the value is undefined.
func (f *Frame) Value(name string, i int) (float64, bool) {
	col, exists := f.columns[name]
	if !exists || i < 0 || i >= len(col) || math.IsNaN(col[i]) {
		return math.NaN(), false
	}
	return col[i], true
}
