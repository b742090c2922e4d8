package indicator

// EMA returns the period-length exponential moving average of closes,
// aligned to the input. Smoothing factor is 2/(period+1); the first value
// is seeded with the simple average of the first period closes, so indices
// before period-1 are undefined.
func EMA(closes []float64, period int) []float64 {
	out := undefinedSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	mult := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*mult + out[i-1]*(1-mult)
	}
	return out
}
