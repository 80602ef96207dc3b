package scan

import (
	"math"
	"sort"

	"github.com/wonny/krxscan/internal/market"
)

// Series extraction helpers. Strategies work on plain float slices so the
// rolling math stays independent of the bar layout.

func closes(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func opens(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Open
	}
	return out
}

func highs(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

func volumes(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// rollingMean returns the w-period trailing mean. Positions with an
// incomplete or NaN-contaminated window are NaN.
func rollingMean(x []float64, w int) []float64 {
	return rollingApply(x, w, func(win []float64) float64 {
		sum := 0.0
		for _, v := range win {
			sum += v
		}
		return sum / float64(len(win))
	})
}

// rollingStd returns the w-period trailing sample standard deviation
// (ddof=1).
func rollingStd(x []float64, w int) []float64 {
	return rollingApply(x, w, func(win []float64) float64 {
		return sampleStd(win)
	})
}

// rollingMax returns the w-period trailing maximum
func rollingMax(x []float64, w int) []float64 {
	return rollingApply(x, w, func(win []float64) float64 {
		max := win[0]
		for _, v := range win[1:] {
			if v > max {
				max = v
			}
		}
		return max
	})
}

// rollingMin returns the w-period trailing minimum
func rollingMin(x []float64, w int) []float64 {
	return rollingApply(x, w, func(win []float64) float64 {
		min := win[0]
		for _, v := range win[1:] {
			if v < min {
				min = v
			}
		}
		return min
	})
}

func rollingApply(x []float64, w int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if w <= 0 {
		return out
	}
	for i := w - 1; i < len(x); i++ {
		win := x[i-w+1 : i+1]
		if hasNaN(win) {
			continue
		}
		out[i] = fn(win)
	}
	return out
}

// pctChange returns x[i]/x[i-n] - 1, NaN where undefined
func pctChange(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i < n || math.IsNaN(x[i]) || math.IsNaN(x[i-n]) || x[i-n] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i]/x[i-n] - 1.0
	}
	return out
}

// shift returns x moved forward by n positions (lagged values)
func shift(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i < n {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i-n]
	}
	return out
}

// sampleStd computes the ddof=1 standard deviation, ignoring nothing
func sampleStd(win []float64) float64 {
	if len(win) < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range win {
		mean += v
	}
	mean /= float64(len(win))

	ss := 0.0
	for _, v := range win {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(win)-1))
}

// stdSkipNaN computes the ddof=1 standard deviation over non-NaN values
func stdSkipNaN(x []float64) float64 {
	vals := dropNaN(x)
	if len(vals) < 2 {
		return math.NaN()
	}
	return sampleStd(vals)
}

// quantile computes the q-quantile with linear interpolation over the
// non-NaN values, matching the rolling-window percentile the compression
// detector expects.
func quantile(x []float64, q float64) float64 {
	vals := dropNaN(x)
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if q <= 0 {
		return vals[0]
	}
	if q >= 1 {
		return vals[len(vals)-1]
	}
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}

// percentileRanks assigns each value its fractional rank in x (average
// rank for ties, scaled to (0, 1]). NaN inputs yield 0.
func percentileRanks(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)

	idx := make([]int, 0, n)
	for i, v := range x {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	total := float64(len(idx))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		// average rank over the tie group, 1-based
		avg := (float64(i+1) + float64(j+1)) / 2.0
		for k := i; k <= j; k++ {
			out[idx[k]] = avg / total
		}
		i = j + 1
	}
	return out
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func dropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// clamp01 clips v into [0, 1]
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// safeDiv divides a by b, returning def when the division is undefined
func safeDiv(a, b, def float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return def
	}
	return a / b
}

// last returns the final element of a series (NaN when empty)
func last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// tail returns the final n elements (fewer when the series is shorter)
func tail(x []float64, n int) []float64 {
	if n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}
