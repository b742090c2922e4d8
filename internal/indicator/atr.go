package indicator

import (
	"math"

	"shortscout/internal/model"
)

// TrueRange returns the per-bar true range series: the largest of
// high-low, |high-prevClose| and |low-prevClose|. The first bar has no
// previous close, so index 0 is undefined.
func TrueRange(bars model.Series) []float64 {
	out := undefinedSeries(len(bars))
	for i := 1; i < len(bars); i++ {
		out[i] = trueRange(bars[i], bars[i-1].Close)
	}
	return out
}

// ATR returns the period-length Average True Range of the series using
// Wilder's smoothing, aligned to the input. The seed is the simple mean of
// the first period true-range samples, so the first defined value sits at
// index period.
func ATR(bars model.Series, period int) []float64 {
	out := undefinedSeries(len(bars))
	if period <= 0 || len(bars) <= period {
		return out
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	out[period] = sum / float64(period)

	p := float64(period)
	for i := period + 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1].Close)
		out[i] = (out[i-1]*(p-1) + tr) / p
	}
	return out
}

func trueRange(b model.Bar, prevClose float64) float64 {
	hl := b.High - b.Low
	hc := math.Abs(b.High - prevClose)
	lc := math.Abs(b.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
