package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// TickerWidth is the canonical zero-padded ticker width (KRX 종목코드)
const TickerWidth = 6

// Bar is one ticker's OHLCV record for one trading day.
// Value, MarketCap and Shares are optional source columns; NaN when absent.
type Bar struct {
	Ticker string
	Date   time.Time // calendar day, UTC midnight
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	Value     float64 // 거래대금 (KRW)
	MarketCap float64 // 시가총액 (KRW)
	Shares    float64 // 상장주식수
}

// Key identifies a Bar inside a Panel. At most one Bar per Key exists.
type Key struct {
	Ticker string
	Date   time.Time
}

// Key returns the dedup key for the bar
func (b Bar) Key() Key {
	return Key{Ticker: b.Ticker, Date: b.Date}
}

// NormalizeTicker zero-pads a ticker to the canonical width
func NormalizeTicker(t string) string {
	t = strings.TrimSpace(t)
	if len(t) >= TickerWidth {
		return t
	}
	return strings.Repeat("0", TickerWidth-len(t)) + t
}

// Day truncates a timestamp to its calendar day in UTC
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYYMMDD or YYYY-MM-DD into a calendar day
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", s)
}

// DayKey formats a calendar day as YYYYMMDD
func DayKey(t time.Time) string {
	return t.Format("20060102")
}

// Panel is the deduplicated multi-ticker daily time series for one market,
// sorted by (ticker, date) ascending. Owned by the panel store; scan code
// borrows read-only views.
type Panel struct {
	Market Market
	Bars   []Bar

	// Optional column presence, carried from the source snapshots
	HasValue     bool
	HasMarketCap bool
	HasShares    bool
}

// Series is one ticker's date-ascending slice of a Panel
type Series struct {
	Ticker string
	Bars   []Bar
}

// Empty reports whether the panel has no rows
func (p *Panel) Empty() bool {
	return p == nil || len(p.Bars) == 0
}

// Len returns the row count
func (p *Panel) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Bars)
}

// LatestDate returns the maximum date in the panel (zero when empty)
func (p *Panel) LatestDate() time.Time {
	var max time.Time
	if p == nil {
		return max
	}
	for _, b := range p.Bars {
		if b.Date.After(max) {
			max = b.Date
		}
	}
	return max
}

// Tickers returns the distinct tickers in panel order
func (p *Panel) Tickers() []string {
	if p.Empty() {
		return nil
	}
	out := make([]string, 0, 64)
	prev := ""
	for _, b := range p.Bars {
		if b.Ticker != prev {
			out = append(out, b.Ticker)
			prev = b.Ticker
		}
	}
	return out
}

// ByTicker groups the sorted panel into per-ticker series.
// Slices alias the panel's backing array; callers must not mutate.
func (p *Panel) ByTicker() []Series {
	if p.Empty() {
		return nil
	}
	out := make([]Series, 0, 64)
	start := 0
	for i := 1; i <= len(p.Bars); i++ {
		if i == len(p.Bars) || p.Bars[i].Ticker != p.Bars[start].Ticker {
			out = append(out, Series{Ticker: p.Bars[start].Ticker, Bars: p.Bars[start:i]})
			start = i
		}
	}
	return out
}

// FilterTickers returns a new panel restricted to the given ticker set,
// retaining all dates for each kept ticker.
func (p *Panel) FilterTickers(keep map[string]bool) *Panel {
	out := &Panel{
		Market:       p.Market,
		HasValue:     p.HasValue,
		HasMarketCap: p.HasMarketCap,
		HasShares:    p.HasShares,
	}
	for _, b := range p.Bars {
		if keep[b.Ticker] {
			out.Bars = append(out.Bars, b)
		}
	}
	return out
}

// Sort orders bars by (ticker, date) ascending. Stable so that later
// occurrences of a duplicate key stay later.
func (p *Panel) Sort() {
	sort.SliceStable(p.Bars, func(i, j int) bool {
		if p.Bars[i].Ticker != p.Bars[j].Ticker {
			return p.Bars[i].Ticker < p.Bars[j].Ticker
		}
		return p.Bars[i].Date.Before(p.Bars[j].Date)
	})
}

// DailySnapshot is one day's bars across all tickers of a market,
// identified by the date key embedded in its source name.
type DailySnapshot struct {
	Market Market
	Date   time.Time
	Source string
	Bars   []Bar

	// Optional column presence in the source file
	HasValue     bool
	HasMarketCap bool
	HasShares    bool

	// Load diagnostics
	DroppedRows int
}

// NaN is the marker for absent optional values
func NaN() float64 {
	return math.NaN()
}
