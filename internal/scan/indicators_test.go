package scan

import (
	"math"
	"testing"
)

func TestRollingMean(t *testing.T) {
	got := rollingMean([]float64{1, 2, 3, 4, 5}, 3)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("incomplete windows must be NaN, got %v", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(got[i+2]-w) > 1e-12 {
			t.Errorf("rollingMean[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestRollingMean_NaNContamination(t *testing.T) {
	x := []float64{1, math.NaN(), 3, 4, 5}
	got := rollingMean(x, 3)

	// windows touching the NaN stay NaN
	for i := 0; i <= 3; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("window %d includes NaN, want NaN, got %v", i, got[i])
		}
	}
	if math.Abs(got[4]-4.0) > 1e-12 {
		t.Errorf("clean window = %v, want 4", got[4])
	}
}

func TestSampleStd(t *testing.T) {
	// ddof=1: std([2,4,4,4,5,5,7,9]) = sqrt(32/7)
	got := sampleStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("sampleStd = %v, want %v", got, want)
	}

	if !math.IsNaN(sampleStd([]float64{1})) {
		t.Error("single-element std must be NaN")
	}
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	cases := []struct {
		q    float64
		want float64
	}{
		{0.0, 1.0},
		{0.5, 2.5},  // pos = 1.5 -> interpolated
		{0.25, 1.75}, // pos = 0.75
		{1.0, 4.0},
	}
	for _, c := range cases {
		got := quantile(x, c.q)
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("quantile(%v) = %v, want %v", c.q, got, c.want)
		}
	}
}

func TestPercentileRanks(t *testing.T) {
	// ties share the average rank
	got := percentileRanks([]float64{10, 20, 20, 40})

	want := []float64{0.25, 0.625, 0.625, 1.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("rank[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPercentileRanks_NaN(t *testing.T) {
	got := percentileRanks([]float64{10, math.NaN(), 30})

	if got[1] != 0 {
		t.Errorf("NaN input must rank 0, got %v", got[1])
	}
	if math.Abs(got[0]-0.5) > 1e-12 || math.Abs(got[2]-1.0) > 1e-12 {
		t.Errorf("ranks over non-NaN values wrong: %v", got)
	}
}

func TestPctChange(t *testing.T) {
	got := pctChange([]float64{100, 110, 99}, 1)

	if !math.IsNaN(got[0]) {
		t.Error("first pct change must be NaN")
	}
	if math.Abs(got[1]-0.1) > 1e-12 {
		t.Errorf("got %v, want 0.1", got[1])
	}
	if math.Abs(got[2]-(-0.1)) > 1e-12 {
		t.Errorf("got %v, want -0.1", got[2])
	}
}

func TestShift(t *testing.T) {
	got := shift([]float64{1, 2, 3}, 1)
	if !math.IsNaN(got[0]) || got[1] != 1 || got[2] != 2 {
		t.Errorf("shift = %v", got)
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.5) != 0 || clamp01(1.5) != 1 || clamp01(0.3) != 0.3 {
		t.Error("clamp01 bounds wrong")
	}
	if clamp01(math.NaN()) != 0 {
		t.Error("clamp01(NaN) must be 0")
	}
}

func TestSafeDiv(t *testing.T) {
	if safeDiv(1, 0, 42) != 42 {
		t.Error("division by zero must return default")
	}
	if safeDiv(math.NaN(), 2, 42) != 42 {
		t.Error("NaN numerator must return default")
	}
	if safeDiv(6, 3, 0) != 2 {
		t.Error("plain division wrong")
	}
}
