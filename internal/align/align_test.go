package align

import (
	"math"
	"testing"
	"time"
)

func minutes(base time.Time, offsets ...int) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, m := range offsets {
		out[i] = base.Add(time.Duration(m) * time.Minute)
	}
	return out
}

func TestFFill_CarriesLastKnownValue(t *testing.T) {
	base0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Base every 5m, source every 15m offset so values land mid-stream.
	baseTS := minutes(base0, 0, 5, 10, 15, 20, 25, 30)
	srcTS := minutes(base0, 5, 20)
	srcVals := []float64{1.0, 2.0}

	out := FFill(baseTS, srcTS, srcVals)

	// Before the first source timestamp: undefined.
	if !math.IsNaN(out[0]) {
		t.Errorf("row 0: want undefined, got %v", out[0])
	}
	// For every base T, the value is the last source value with ts <= T.
	want := []float64{math.NaN(), 1, 1, 1, 2, 2, 2}
	for i := 1; i < len(want); i++ {
		if out[i] != want[i] {
			t.Errorf("row %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestFFill_ExactTimestampMatches(t *testing.T) {
	base0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	baseTS := minutes(base0, 0, 60)
	srcTS := minutes(base0, 0, 60)
	out := FFill(baseTS, srcTS, []float64{10, 20})

	// source ts == base ts counts as available (<=, not <)
	if out[0] != 10 || out[1] != 20 {
		t.Errorf("got %v, want [10 20]", out)
	}
}

func TestFFill_SourceUndefinedValuesPropagate(t *testing.T) {
	// An undefined indicator value in the source is still "the last source
	// value" and must carry forward as undefined, not be skipped.
	base0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	baseTS := minutes(base0, 0, 5, 10)
	srcTS := minutes(base0, 0, 10)
	out := FFill(baseTS, srcTS, []float64{math.NaN(), 7})

	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Errorf("undefined source values must carry forward: got %v", out)
	}
	if out[2] != 7 {
		t.Errorf("row 2: got %v, want 7", out[2])
	}
}

func TestFrame_SetAligned_MissingSourceIsAllUndefined(t *testing.T) {
	base0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrame(minutes(base0, 0, 5, 10))

	// Entirely unavailable optional source: column defined as undefined
	// for every row, never an error.
	f.SetAligned("daily_trend", nil, nil)

	for i := 0; i < f.Len(); i++ {
		if _, ok := f.Value("daily_trend", i); ok {
			t.Errorf("row %d: want undefined", i)
		}
	}
}

func TestFrame_SetRejectsMismatchedLength(t *testing.T) {
	base0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrame(minutes(base0, 0, 5, 10))
	if err := f.Set("close", []float64{1, 2}); err == nil {
		t.Error("expected error for column length mismatch")
	}
}

func TestBarsPerHour(t *testing.T) {
	cases := []struct {
		minutes int
		want    int
		wantErr bool
	}{
		{5, 12, false},
		{15, 4, false},
		{60, 1, false},
		{1, 60, false},
		{7, 0, true},  // does not divide 60
		{0, 0, true},  // nonsense
		{-5, 0, true}, // nonsense
	}
	for _, tc := range cases {
		got, err := BarsPerHour(tc.minutes)
		if tc.wantErr {
			if err == nil {
				t.Errorf("BarsPerHour(%d): expected error", tc.minutes)
			}
			continue
		}
		if err != nil {
			t.Errorf("BarsPerHour(%d): %v", tc.minutes, err)
		}
		if got != tc.want {
			t.Errorf("BarsPerHour(%d) = %d, want %d", tc.minutes, got, tc.want)
		}
	}
}

func TestShift(t *testing.T) {
	out := Shift([]float64{10, 11, 12, 13, 14}, 2)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Errorf("first n rows must be undefined: %v", out[:2])
	}
	for i, want := range []float64{10, 11, 12} {
		if out[i+2] != want {
			t.Errorf("row %d: got %v, want %v", i+2, out[i+2], want)
		}
	}
}
