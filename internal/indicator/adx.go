package indicator

import "shortscout/internal/model"

// ADX returns the period-length Average Directional Index of the series,
// aligned to the input.
//
// Per bar, +DM is high-prevHigh and -DM is prevLow-low; each is zeroed when
// negative or when the opposite move dominates. +DM, -DM and true range are
// Wilder-smoothed over period; the directional indicators are
// +DI = 100*smoothed(+DM)/smoothed(TR) (and -DI analogously), and
// DX = 100*|+DI - -DI|/(+DI + -DI), defined as 0 when both DI are 0. The
// ADX itself is DX Wilder-smoothed over another period, so the first defined
// value needs 2*period bars; earlier indices are undefined.
func ADX(bars model.Series, period int) []float64 {
	out := undefinedSeries(len(bars))
	if period <= 0 || len(bars) < 2*period {
		return out
	}

	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = trueRange(bars[i], bars[i-1].Close)
	}

	p := float64(period)

	// Wilder-smoothed +DM / -DM / TR, then DX per bar from index period on.
	var smPlus, smMinus, smTR float64
	for i := 1; i <= period; i++ {
		smPlus += plusDM[i]
		smMinus += minusDM[i]
		smTR += tr[i]
	}
	smPlus /= p
	smMinus /= p
	smTR /= p

	dx := make([]float64, n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smPlus = (smPlus*(p-1) + plusDM[i]) / p
		smMinus = (smMinus*(p-1) + minusDM[i]) / p
		smTR = (smTR*(p-1) + tr[i]) / p
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	// ADX: Wilder smoothing of DX, seeded with the mean of the first
	// period DX samples.
	var sum float64
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	out[2*period-1] = sum / p
	for i := 2 * period; i < n; i++ {
		out[i] = (out[i-1]*(p-1) + dx[i]) / p
	}
	return out
}

// dxValue computes one DX sample from smoothed directional movement and
// true range. Flat markets (zero TR or both DI zero) yield 0, not NaN.
func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	plusDI := 100 * smPlus / smTR
	minusDI := 100 * smMinus / smTR
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	diff := plusDI - minusDI
	if diff < 0 {
		diff = -diff
	}
	return 100 * diff / sum
}
