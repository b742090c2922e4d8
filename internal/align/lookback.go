package align

import (
	"fmt"
	"math"
)

// BarsPerHour converts a base-bar interval in minutes into bars per hour.
// Intervals that do not divide an hour evenly are a configuration error.
func BarsPerHour(intervalMinutes int) (int, error) {
	if intervalMinutes <= 0 {
		return 0, fmt.Errorf("align: bar interval must be positive, got %dm", intervalMinutes)
	}
	if 60%intervalMinutes != 0 {
		return 0, fmt.Errorf("align: bar interval %dm does not divide an hour evenly", intervalMinutes)
	}
	return 60 / intervalMinutes, nil
}

// Shift returns the values delayed by n bars: out[i] = vals[i-n]. The first
// n rows have no history and are undefined.
func Shift(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		if i < n {
			out[i] = math.NaN()
		} else {
			out[i] = vals[i-n]
		}
	}
	return out
}
