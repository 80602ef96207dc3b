package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// pullbackSeries builds a 130-day linear rise from 90 to 100 with one
// spike high (112) inside the last 20 days and one spike low (95)
// inside the last 10 days. 구성상 정확히 한 종목이 통과해야 한다.
func pullbackSeries(ticker string, days int) []market.Bar {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, days)
	for t := 0; t < days; t++ {
		c := 90.0 + 10.0*float64(t)/float64(days-1)
		h := c + 0.2
		l := c - 0.2
		if t == days-15 {
			h = 112.0 // 20일 최고가 = 목표가
		}
		if t == days-5 {
			l = 95.0 // 10일 최저가 = 손절 기준
		}
		bars = append(bars, market.Bar{
			Ticker: ticker,
			Date:   market.Day(base.AddDate(0, 0, t)),
			Open:   c,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: 1000,
			Value:  market.NaN(), MarketCap: market.NaN(), Shares: market.NaN(),
		})
	}
	return bars
}

func newTestPanel(bars ...[]market.Bar) *market.Panel {
	p := &market.Panel{Market: market.KOSPI}
	for _, b := range bars {
		p.Bars = append(p.Bars, b...)
	}
	p.Sort()
	return p
}

func TestPullbackRR_Scan(t *testing.T) {
	s := NewPullbackRR(logger.NewNop())

	p := newTestPanel(
		pullbackSeries("005930", 130),
		pullbackSeries("000660", 100), // too short, must be excluded
	)

	cands, err := s.Scan(p, Input{Params: DefaultParams()})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "005930", c.Ticker)
	assert.Empty(t, string(c.Stage))
	assert.InDelta(t, 100.0, c.Entry, 1e-9)
	assert.InDelta(t, 95.0*(1-0.005), c.Stop, 1e-9)
	assert.InDelta(t, 112.0, c.Target, 1e-9)
	assert.InDelta(t, 100.0-94.525, c.Risk, 1e-9)
	assert.InDelta(t, 12.0, c.Reward, 1e-9)
	assert.InDelta(t, 12.0/5.475, c.RR, 1e-9)

	// 단독 후보의 상대강도는 1.0
	assert.InDelta(t, 1.0, c.Scores["rs"], 1e-9)
	for name, v := range c.Scores {
		assert.GreaterOrEqual(t, v, 0.0, "sub-score %s below 0", name)
		assert.LessOrEqual(t, v, 1.0, "sub-score %s above 1", name)
	}
	assert.GreaterOrEqual(t, c.Score, 0.0)
	assert.LessOrEqual(t, c.Score, 100.0)
}

func TestPullbackRR_MinRRExcludes(t *testing.T) {
	s := NewPullbackRR(logger.NewNop())
	p := newTestPanel(pullbackSeries("005930", 130))

	// 합성 데이터의 rr ≈ 2.19, 바로 위 문턱이면 탈락
	params := DefaultParams()
	params.MinRR = 2.2

	cands, err := s.Scan(p, Input{Params: params})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestPullbackRR_MA5UpDays(t *testing.T) {
	s := NewPullbackRR(logger.NewNop())
	p := newTestPanel(pullbackSeries("005930", 130))

	// strictly rising closes keep MA5 rising every day
	params := DefaultParams()
	params.MA5UpDays = 3

	cands, err := s.Scan(p, Input{Params: params})
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestPullbackRR_EmptyPanel(t *testing.T) {
	s := NewPullbackRR(logger.NewNop())

	cands, err := s.Scan(&market.Panel{Market: market.KOSPI}, Input{Params: DefaultParams()})
	require.NoError(t, err)
	assert.NotNil(t, cands)
	assert.Empty(t, cands)
}

func TestPullbackRR_InvalidParams(t *testing.T) {
	s := NewPullbackRR(logger.NewNop())
	p := newTestPanel(pullbackSeries("005930", 130))

	params := DefaultParams()
	params.MinRR = -1

	_, err := s.Scan(p, Input{Params: params})
	require.Error(t, err)

	var invalid *market.InvalidParamsError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "min_rr", invalid.Field)
}
