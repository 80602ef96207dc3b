package breadth

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Mode selects which moving-average condition gates the market
type Mode string

const (
	CloseAboveMA20 Mode = "close_above_ma20"
	MA20AboveMA60  Mode = "ma20_above_ma60"
	Both           Mode = "both"
	Off            Mode = "off"
)

// Point is one daily index closing level
type Point struct {
	Date  time.Time
	Close float64
}

// Series is an index closing-level series with derived moving averages
type Series struct {
	Points []Point
	MA20   []float64
	MA60   []float64
}

// Build sorts the points by date and derives the 20/60-day moving averages
func Build(points []Point) *Series {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	s := &Series{
		Points: sorted,
		MA20:   make([]float64, len(sorted)),
		MA60:   make([]float64, len(sorted)),
	}
	for i := range sorted {
		s.MA20[i] = trailingMean(sorted, i, 20)
		s.MA60[i] = trailingMean(sorted, i, 60)
	}
	return s
}

func trailingMean(points []Point, i, w int) float64 {
	if i+1 < w {
		return math.NaN()
	}
	sum := 0.0
	for k := i - w + 1; k <= i; k++ {
		sum += points[k].Close
	}
	return sum / float64(w)
}

// OK reports whether the market passes the breadth gate. Missing index
// data or an unready MA passes with a reason (fail-open): the gate is a
// caution signal, not a data dependency of the scan itself.
func OK(s *Series, mode Mode) (bool, string) {
	if mode == Off {
		return true, "Breadth gate disabled."
	}
	if s == nil || len(s.Points) == 0 {
		return true, "Index data not available (passed)."
	}

	i := len(s.Points) - 1
	last := s.Points[i]
	ma20 := s.MA20[i]
	ma60 := s.MA60[i]

	if math.IsNaN(ma20) {
		return true, "Index MA20 not ready (passed)."
	}

	c1 := last.Close > ma20
	c2 := !math.IsNaN(ma60) && ma20 > ma60

	switch mode {
	case MA20AboveMA60:
		return c2, fmt.Sprintf("Index MA20(%.2f) > MA60(%.2f)", ma20, ma60)
	case Both:
		return c1 && c2, fmt.Sprintf("Index close(%.2f) > MA20(%.2f) and MA20(%.2f) > MA60(%.2f)",
			last.Close, ma20, ma20, ma60)
	default:
		return c1, fmt.Sprintf("Index close(%.2f) > MA20(%.2f)", last.Close, ma20)
	}
}
