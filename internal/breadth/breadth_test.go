package breadth

import (
	"testing"
	"time"
)

func points(closes ...float64) []Point {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]Point, len(closes))
	for i, c := range closes {
		out[i] = Point{Date: base.AddDate(0, 0, i), Close: c}
	}
	return out
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func falling(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - step*float64(i)
	}
	return out
}

func TestOK_Off(t *testing.T) {
	ok, _ := OK(nil, Off)
	if !ok {
		t.Error("off mode must always pass")
	}
}

func TestOK_MissingDataPasses(t *testing.T) {
	// 지수 데이터가 없으면 게이트는 열린 채 통과 (fail-open)
	ok, reason := OK(nil, CloseAboveMA20)
	if !ok {
		t.Errorf("missing series must pass, got %q", reason)
	}

	ok, _ = OK(Build(nil), Both)
	if !ok {
		t.Error("empty series must pass")
	}
}

func TestOK_MA20NotReadyPasses(t *testing.T) {
	s := Build(points(rising(10, 100, 1)...))
	ok, _ := OK(s, CloseAboveMA20)
	if !ok {
		t.Error("unready MA20 must pass open")
	}
}

func TestOK_Uptrend(t *testing.T) {
	s := Build(points(rising(80, 100, 1)...))

	for _, mode := range []Mode{CloseAboveMA20, MA20AboveMA60, Both} {
		ok, reason := OK(s, mode)
		if !ok {
			t.Errorf("rising index must pass %s, got %q", mode, reason)
		}
	}
}

func TestOK_Downtrend(t *testing.T) {
	s := Build(points(falling(80, 500, 1)...))

	for _, mode := range []Mode{CloseAboveMA20, MA20AboveMA60, Both} {
		ok, _ := OK(s, mode)
		if ok {
			t.Errorf("falling index must fail %s", mode)
		}
	}
}

func TestBuild_SortsByDate(t *testing.T) {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := Build([]Point{
		{Date: base.AddDate(0, 0, 2), Close: 3},
		{Date: base, Close: 1},
		{Date: base.AddDate(0, 0, 1), Close: 2},
	})

	if s.Points[0].Close != 1 || s.Points[2].Close != 3 {
		t.Errorf("points not sorted: %+v", s.Points)
	}
}
