package scan

import (
	"math"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// PullbackRR finds uptrending tickers pulling back to the 20-day moving
// average with an acceptable reward:risk setup.
// ⭐ SSOT: pullback 스캔 로직은 여기서만
type PullbackRR struct {
	logger *logger.Logger
}

// Pullback weights and constants
const (
	pullbackMinHistory = 120

	// momentum retention: 20D high must hold >= 95% of the 60D high
	momentumRetention = 0.95

	// volume cooling ceiling: vol5 <= 1.5 * volMA20
	volumeCoolingMax = 1.5

	// rr preference peaks near this ratio and decays linearly
	rrPrefCenter    = 2.15
	rrPrefHalfWidth = 1.35
)

// NewPullbackRR creates the pullback strategy
func NewPullbackRR(log *logger.Logger) *PullbackRR {
	return &PullbackRR{logger: log}
}

func (s *PullbackRR) Key() string    { return "pullback_rr" }
func (s *PullbackRR) Name() string   { return "Pullback + Risk/Reward" }
func (s *PullbackRR) UsesCaps() bool { return false }

// ScoringTag changes whenever the composite weights change
func (s *PullbackRR) ScoringTag() string {
	return "pullback_rr:w35-20-15-10-10-10:v1"
}

// pullbackRow holds one surviving ticker before the relative-strength pass
type pullbackRow struct {
	cand      Candidate
	ret20     float64
	rrPref    float64
	trend     float64
	volScore  float64
	volBal    float64
	ma5Slope  float64
}

// Scan runs the filter pipeline per ticker and scores survivors.
// An empty panel, or a panel every ticker of which is filtered out,
// yields an empty list, never an error.
func (s *PullbackRR) Scan(p *market.Panel, in Input) ([]Candidate, error) {
	if err := in.Params.Validate(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return []Candidate{}, nil
	}
	params := in.Params

	fail := map[string]int{
		"len<120":     0,
		"na":          0,
		"uptrend":     0,
		"momentum":    0,
		"near_ma20":   0,
		"vol":         0,
		"risk_reward": 0,
		"min_rr":      0,
		"ma5_up_days": 0,
	}

	rows := make([]pullbackRow, 0, 32)

	for _, series := range p.ByTicker() {
		bars := series.Bars
		if len(bars) < pullbackMinHistory {
			fail["len<120"]++
			continue
		}

		c := closes(bars)
		h := highs(bars)
		l := lows(bars)
		v := volumes(bars)

		ma5 := rollingMean(c, 5)
		ma20 := rollingMean(c, 20)
		ma60 := rollingMean(c, 60)
		volMA20 := rollingMean(v, 20)
		vol5 := rollingMean(v, 5)
		std20 := rollingStd(pctChange(c, 1), 20)
		ret20 := pctChange(c, 20)
		high20 := rollingMax(h, 20)
		high60 := rollingMax(h, 60)
		recentLow := rollingMin(l, params.StopLookback)
		target := rollingMax(h, params.TargetLookback)
		ma20Lag5 := shift(ma20, 5)

		i := len(bars) - 1

		// slope needs 3 lags; the rising-days check needs MA5UpDays lags
		needLags := 3
		if params.MA5UpDays > needLags {
			needLags = params.MA5UpDays
		}
		ma5Lags := make([]float64, needLags)
		undefined := false
		for k := 1; k <= needLags; k++ {
			ma5Lags[k-1] = shift(ma5, k)[i]
			if math.IsNaN(ma5Lags[k-1]) {
				undefined = true
			}
		}
		for _, x := range []float64{
			ma20[i], ma60[i], volMA20[i], ma5[i], ma20Lag5[i],
			std20[i], ret20[i], high20[i], high60[i],
			recentLow[i], target[i], vol5[i],
		} {
			if math.IsNaN(x) {
				undefined = true
			}
		}
		if undefined {
			fail["na"]++
			continue
		}

		// 1. uptrend
		if !(ma20[i] > ma60[i]) {
			fail["uptrend"]++
			continue
		}

		// 2. recent momentum retained
		if !(high20[i] >= high60[i]*momentumRetention) {
			fail["momentum"]++
			continue
		}

		// 3. proximity to MA20
		if !(math.Abs(c[i]-ma20[i])/ma20[i] <= params.Tolerance) {
			fail["near_ma20"]++
			continue
		}

		// 4. volume cooling
		if !(volMA20[i] > 0 && vol5[i] <= volMA20[i]*volumeCoolingMax) {
			fail["vol"]++
			continue
		}

		// 5. levels
		entry := c[i]
		stop := recentLow[i] * (1.0 - params.StopBuffer)
		risk := entry - stop
		reward := target[i] - entry
		if !(risk > 0 && reward > 0) {
			fail["risk_reward"]++
			continue
		}

		// 6. reward:risk floor
		rr := reward / risk
		if rr < params.MinRR {
			fail["min_rr"]++
			continue
		}

		// 7. MA5 rising N days (strict day-over-day increases)
		if n := params.MA5UpDays; n > 0 {
			ok := true
			prev := ma5[i]
			for k := 0; k < n; k++ {
				if !(prev > ma5Lags[k]) {
					ok = false
					break
				}
				prev = ma5Lags[k]
			}
			if !ok {
				fail["ma5_up_days"]++
				continue
			}
		}

		// sub-scores
		ma5Slope3d := finiteOr(ma5[i]/ma5Lags[2]-1.0, 0)
		ma5SlopeScore := clamp01(ma5Slope3d / 0.01)

		ma20Slope5d := finiteOr(ma20[i]/ma20Lag5[i]-1.0, 0)
		trendSlope := clamp01(ma20Slope5d / 0.02)
		r20 := finiteOr(ret20[i], 0)
		trendRet := clamp01(r20 / 0.10)
		trendScore := 0.6*trendSlope + 0.4*trendRet

		bbWidth := 4.0 * finiteOr(std20[i], 0)
		volScore := clamp01(1.0 - bbWidth/0.20)

		volRatio := finiteOr(vol5[i]/volMA20[i], 1.0)
		volBalance := clamp01(1.0 - math.Abs(volRatio-0.75)/0.75)

		rrPref := clamp01(1.0 - math.Abs(rr-rrPrefCenter)/rrPrefHalfWidth)

		rows = append(rows, pullbackRow{
			cand: Candidate{
				Ticker: series.Ticker,
				Date:   bars[i].Date,
				Entry:  entry,
				Stop:   stop,
				Target: target[i],
				Risk:   risk,
				Reward: reward,
				RR:     rr,
			},
			ret20:    r20,
			rrPref:   rrPref,
			trend:    trendScore,
			volScore: volScore,
			volBal:   volBalance,
			ma5Slope: ma5SlopeScore,
		})
	}

	// relative strength is the percentile rank of ret20 among the
	// surviving candidate set only, computed as a final pass
	ret20s := make([]float64, len(rows))
	for i, r := range rows {
		ret20s[i] = r.ret20
	}
	rs := percentileRanks(ret20s)

	cands := make([]Candidate, 0, len(rows))
	for i, r := range rows {
		c := r.cand
		c.Scores = map[string]float64{
			"rr_pref":     r.rrPref,
			"trend":       r.trend,
			"vol":         r.volScore,
			"vol_balance": r.volBal,
			"rs":          rs[i],
			"ma5_slope":   r.ma5Slope,
		}
		c.Score = 100.0 * (0.35*r.rrPref +
			0.20*r.trend +
			0.15*r.volScore +
			0.10*r.volBal +
			0.10*rs[i] +
			0.10*r.ma5Slope)
		cands = append(cands, c)
	}

	sortCandidates(cands)

	s.logger.WithFields(map[string]interface{}{
		"strategy":   s.Key(),
		"candidates": len(cands),
		"rejected":   fail,
	}).Info("Scan completed")

	return cands, nil
}

// finiteOr replaces NaN/Inf with a default
func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
