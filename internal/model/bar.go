// Package model defines the market data types shared across the scanner:
// OHLCV bars, per-timeframe series, and signal decisions.
package model

import (
	"fmt"
	"time"
)

// Bar represents one OHLCV candle for a single symbol and timeframe.
// Timestamps are UTC bucket-open times; prices are quote-currency floats.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ordered sequence of bars for one symbol+timeframe,
// strictly increasing by timestamp, no duplicates.
type Series []Bar

// Closes returns the close column of the series.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Timestamps returns the timestamp index of the series.
func (s Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s))
	for i, b := range s {
		out[i] = b.TS
	}
	return out
}

// Validate checks the series invariants: strictly increasing timestamps
// and positive price fields.
func (s Series) Validate() error {
	for i, b := range s {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("series: bar %d at %s has non-positive price", i, b.TS.Format(time.RFC3339))
		}
		if i > 0 && !b.TS.After(s[i-1].TS) {
			return fmt.Errorf("series: bar %d at %s does not advance past %s",
				i, b.TS.Format(time.RFC3339), s[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}

// LastClosed returns the most recently *closed* bar. The final bar of a
// freshly fetched series is the in-progress bucket and must never be
// evaluated, so this is the second-to-last bar.
func (s Series) LastClosed() (Bar, bool) {
	if len(s) < 2 {
		return Bar{}, false
	}
	return s[len(s)-2], true
}
