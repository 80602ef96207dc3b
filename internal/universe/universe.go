package universe

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// RankBy names a ranking attribute for top-N selection
type RankBy string

const (
	ByMarketCap RankBy = "market_cap"
	ByValue     RankBy = "value"
	ByVolume    RankBy = "volume"
)

// rank attribute fallback order when the requested one is absent
var fallbackOrder = []RankBy{ByMarketCap, ByValue, ByVolume}

// Info is a diagnostic record of a universe resolution. It is not used
// for control flow downstream.
type Info struct {
	Market     market.Market `json:"market"`
	TopN       int           `json:"top_n"` // 0 = no filtering
	RankBy     RankBy        `json:"rank_by"`
	LatestDate time.Time     `json:"latest_date"`
	Tickers    int           `json:"tickers"`
	Rows       int           `json:"rows"`
}

// Selector resolves the ticker set to scan
// ⭐ SSOT: 유니버스 선정 로직은 여기서만
type Selector struct {
	logger *logger.Logger
}

// New creates a selector
func New(log *logger.Logger) *Selector {
	return &Selector{logger: log}
}

// Select filters the panel to the top-N tickers ranked by rankBy on the
// panel's latest date. topN <= 0 means no filtering. When the requested
// rank attribute is absent it falls back through market_cap, value,
// volume; market.ErrNoRankColumn is returned only if none is usable.
func (s *Selector) Select(p *market.Panel, topN int, rankBy RankBy) (*market.Panel, Info, error) {
	info := Info{Market: p.Market, TopN: topN, RankBy: rankBy}
	if p.Empty() {
		return p, info, nil
	}

	latest := p.LatestDate()
	info.LatestDate = latest

	if topN <= 0 {
		rank, err := pickRankColumn(p, rankBy)
		if err != nil {
			return nil, info, err
		}
		info.TopN = 0
		info.RankBy = rank
		info.Tickers = len(p.Tickers())
		info.Rows = p.Len()
		return p, info, nil
	}

	rank, err := pickRankColumn(p, rankBy)
	if err != nil {
		return nil, info, err
	}
	info.RankBy = rank

	// latest-date snapshot, best-ranked row per ticker
	type row struct {
		ticker string
		value  float64
		order  int // original position for stable ties
	}
	best := make(map[string]row)
	orderIdx := 0
	for _, b := range p.Bars {
		if !b.Date.Equal(latest) {
			continue
		}
		v := rankValue(b, rank)
		cur, seen := best[b.Ticker]
		if !seen || greater(v, cur.value) {
			if !seen {
				cur.order = orderIdx
				orderIdx++
			}
			best[b.Ticker] = row{ticker: b.Ticker, value: v, order: cur.order}
		}
	}

	rows := make([]row, 0, len(best))
	for _, r := range best {
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].value != rows[j].value && !(math.IsNaN(rows[i].value) && math.IsNaN(rows[j].value)) {
			return greater(rows[i].value, rows[j].value)
		}
		return rows[i].order < rows[j].order
	})

	n := topN
	if n > len(rows) {
		n = len(rows)
	}
	keep := make(map[string]bool, n)
	for _, r := range rows[:n] {
		keep[r.ticker] = true
	}

	filtered := p.FilterTickers(keep)
	info.Tickers = n
	info.Rows = filtered.Len()

	s.logger.WithFields(map[string]interface{}{
		"market":  p.Market,
		"top_n":   topN,
		"rank_by": rank,
		"as_of":   market.DayKey(latest),
		"tickers": info.Tickers,
		"rows":    info.Rows,
	}).Info("Universe selected")

	return filtered, info, nil
}

// greater orders rank values descending with NaN last
func greater(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a > b
}

// pickRankColumn resolves a usable rank attribute.
// Priority: requested -> market_cap -> value -> volume
func pickRankColumn(p *market.Panel, preferred RankBy) (RankBy, error) {
	candidates := make([]RankBy, 0, 4)
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	candidates = append(candidates, fallbackOrder...)

	for _, c := range candidates {
		switch c {
		case ByMarketCap:
			if p.HasMarketCap {
				return c, nil
			}
		case ByValue:
			if p.HasValue {
				return c, nil
			}
		case ByVolume:
			// volume is a required bar column, always usable
			return c, nil
		}
	}
	return "", market.ErrNoRankColumn
}

func rankValue(b market.Bar, rank RankBy) float64 {
	switch rank {
	case ByMarketCap:
		return b.MarketCap
	case ByValue:
		return b.Value
	default:
		return float64(b.Volume)
	}
}
