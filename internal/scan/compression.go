package scan

import (
	"math"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// VolCompressionBreakout finds tickers whose volatility and range have
// contracted versus recent history (WATCH) and flags confirmed breakouts
// with volume surge (BREAKOUT).
// ⭐ SSOT: 변동성 압축/돌파 스캔 로직은 여기서만
type VolCompressionBreakout struct {
	logger *logger.Logger
}

// Compression/breakout tunables. Fixed constants, not Params fields;
// changing them changes ScoringTag.
const (
	vcbMinHistory = 140

	bbLookback        = 20
	bbPercentileWin   = 120
	bbWidthQ          = 0.20 // lower 20% = compression
	bbMinWinCoverage  = 0.7  // percentile window must be >= 70% populated
	bbPersistMinOf5   = 4    // bb_width <= q on >= 4 of the last 5 days
	rangeLookback     = 20
	rangeMax          = 0.10 // 20D box range <= 10%
	volDryRatioMax    = 0.85 // vol5 / vol20 <= 0.85
	breakoutLookback  = 20
	maxStd60          = 0.035 // 60D daily-return std ceiling
	maxDayRange       = 0.12  // (high-low)/close ceiling
	maxGapUp          = 0.06
	minCloseMargin    = 0.01 // close >= prev20_high * 1.01
	volSurgeMin       = 1.8  // today vol / prev 20D avg vol
	volSurgeVsVol5Min = 1.3  // today vol / 5D avg vol

	// liquidity / size floors (KRW)
	minMarketCap  = 300_000_000_000 // 3,000억
	minValueMA20  = 3_000_000_000   // 30억 20일 평균 거래대금
)

// NewVolCompressionBreakout creates the compression strategy
func NewVolCompressionBreakout(log *logger.Logger) *VolCompressionBreakout {
	return &VolCompressionBreakout{logger: log}
}

func (s *VolCompressionBreakout) Key() string { return "vol_compression_breakout" }

func (s *VolCompressionBreakout) Name() string {
	return "Vol Compression -> Breakout (Watch + Confirm + VolSurge)"
}

// UsesCaps: the liquidity pre-filter gates on the cap snapshot
func (s *VolCompressionBreakout) UsesCaps() bool { return true }

// ScoringTag changes whenever the stage weights change
func (s *VolCompressionBreakout) ScoringTag() string {
	return "vol_compression_breakout:watch70-30_breakout45-15-20-20:v1"
}

// Scan evaluates compression and breakout per ticker. min_rr is enforced
// only for BREAKOUT rows; WATCH rows are early-stage candidates with
// necessarily fuzzier levels.
func (s *VolCompressionBreakout) Scan(p *market.Panel, in Input) ([]Candidate, error) {
	if err := in.Params.Validate(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return []Candidate{}, nil
	}
	params := in.Params

	fail := map[string]int{
		"history":      0,
		"market_cap":   0,
		"value_ma20":   0,
		"na":           0,
		"std60":        0,
		"day_range":    0,
		"gap_up":       0,
		"bb_window":    0,
		"bb_persist":   0,
		"compression":  0,
		"close_margin": 0,
		"vol_surge":    0,
		"vol_vs_5":     0,
		"risk_reward":  0,
		"min_rr":       0,
	}

	cands := make([]Candidate, 0, 16)

	for _, series := range p.ByTicker() {
		bars := series.Bars
		if len(bars) < vcbMinHistory {
			fail["history"]++
			continue
		}

		// liquidity gate: missing cap entries count as 0 (fail-closed)
		if in.Caps[series.Ticker] < minMarketCap {
			fail["market_cap"]++
			continue
		}

		c := closes(bars)
		o := opens(bars)
		h := highs(bars)
		l := lows(bars)
		v := volumes(bars)

		// 20D average trading value
		value := make([]float64, len(c))
		for i := range value {
			value[i] = c[i] * v[i]
		}
		if last(rollingMean(value, 20)) < minValueMA20 {
			fail["value_ma20"]++
			continue
		}

		ma20 := rollingMean(c, 20)
		ma60 := rollingMean(c, 60)
		ret1 := pctChange(c, 1)
		std20 := rollingStd(ret1, bbLookback)

		// BB width proxy from the return std, (upper-lower)/close ~ 4*std
		bbWidth := make([]float64, len(std20))
		for i, x := range std20 {
			bbWidth[i] = 4.0 * x
		}

		volMA20 := rollingMean(v, 20)
		volMA20Prev := shift(volMA20, 1)
		vol5Mean := rollingMean(v, 5)

		high20 := rollingMax(h, rangeLookback)
		low20 := rollingMin(l, rangeLookback)
		prev20High := shift(rollingMax(h, breakoutLookback), 1)
		ret20 := pctChange(c, 20)

		i := len(bars) - 1
		if math.IsNaN(ma20[i]) || math.IsNaN(ma60[i]) || math.IsNaN(bbWidth[i]) || math.IsNaN(prev20High[i]) {
			fail["na"]++
			continue
		}

		// volatility upper bound over the trailing 60 days
		if stdSkipNaN(tail(ret1, 60)) > maxStd60 {
			fail["std60"]++
			continue
		}

		// reject exhausted moves: huge day range or gap-up
		dayRange := safeDiv(h[i]-l[i], c[i], 0)
		if dayRange > maxDayRange {
			fail["day_range"]++
			continue
		}
		prevClose := c[i-1]
		gapUp := safeDiv(o[i]-prevClose, prevClose, 0)
		if gapUp > maxGapUp {
			fail["gap_up"]++
			continue
		}

		// compression: bb width at or below its trailing-120D 20th pct
		bbWin := dropNaN(tail(bbWidth, bbPercentileWin))
		if len(bbWin) < int(float64(bbPercentileWin)*bbMinWinCoverage) {
			fail["bb_window"]++
			continue
		}
		bbQ := quantile(bbWin, bbWidthQ)
		bbCompressed := bbQ > 0 && bbWidth[i] <= bbQ

		// persistence: the threshold must have held on most of the last 5 days
		persist := 0
		for _, w := range tail(bbWidth, 5) {
			if !math.IsNaN(w) && w <= bbQ {
				persist++
			}
		}
		if persist < bbPersistMinOf5 {
			fail["bb_persist"]++
			continue
		}

		maGap := 1.0
		if c[i] != 0 {
			maGap = math.Abs(ma20[i]-ma60[i]) / c[i]
		}
		maConverged := maGap <= params.Tolerance

		range20 := 1.0
		if !math.IsNaN(high20[i]) && !math.IsNaN(low20[i]) {
			range20 = (high20[i] - low20[i]) / c[i]
		}
		inBox := range20 <= rangeMax

		volRatio5v20 := safeDiv(finiteOr(vol5Mean[i], 0), finiteOr(volMA20[i], 0), 999.0)
		volDry := volRatio5v20 <= volDryRatioMax

		if !(bbCompressed && maConverged && inBox && volDry) {
			fail["compression"]++
			continue
		}

		// breakout: both high and close must clear the prior 20D high
		highBreak := h[i] > prev20High[i]
		closeHold := c[i] > prev20High[i]
		breakoutConfirmed := highBreak && closeHold

		if breakoutConfirmed {
			closeMargin := 0.0
			if prev20High[i] > 0 {
				closeMargin = c[i]/prev20High[i] - 1.0
			}
			if closeMargin < minCloseMargin {
				fail["close_margin"]++
				continue
			}
		}

		volSurgeRatio := safeDiv(v[i], finiteOr(volMA20Prev[i], 0), 0)
		volSurgeOK := volSurgeRatio >= volSurgeMin

		if breakoutConfirmed {
			if volSurgeRatio < volSurgeMin {
				fail["vol_surge"]++
				continue
			}
			volVs5 := safeDiv(v[i], finiteOr(vol5Mean[i], 0), 0)
			if volVs5 < volSurgeVsVol5Min {
				fail["vol_vs_5"]++
				continue
			}
		}

		stage := StageWatch
		if breakoutConfirmed && volSurgeOK {
			stage = StageBreakout
		}

		// levels; WATCH rows still get a preview
		entry := c[i]
		recentLow := math.Inf(1)
		for _, x := range tail(l, params.StopLookback) {
			if x < recentLow {
				recentLow = x
			}
		}
		stop := recentLow * (1.0 - params.StopBuffer)
		risk := entry - stop
		if risk <= 0 {
			fail["risk_reward"]++
			continue
		}

		// target floor: at least 2R even absent a clear resistance level
		targetA := math.Inf(-1)
		for _, x := range tail(h, params.TargetLookback) {
			if x > targetA {
				targetA = x
			}
		}
		target := math.Max(targetA, entry+2.0*risk)
		reward := target - entry
		if reward <= 0 {
			fail["risk_reward"]++
			continue
		}

		rr := reward / risk
		if stage == StageBreakout && rr < params.MinRR {
			fail["min_rr"]++
			continue
		}

		// compression strength sub-scores
		bbScore := 0.0
		if bbQ > 0 {
			bbScore = clamp01(1.0 - (bbWidth[i]/bbQ - 1.0))
		}
		rangeScore := clamp01(1.0 - range20/rangeMax)
		maScore := clamp01(1.0 - maGap/math.Max(params.Tolerance, 1e-9))
		volDryScore := clamp01(1.0 - volRatio5v20/volDryRatioMax)
		compressionScore := 0.35*bbScore + 0.25*rangeScore + 0.20*maScore + 0.20*volDryScore

		trendUp := 0.0
		if ma20[i] > ma60[i] {
			trendUp = 1.0
		}
		trendScore := 0.6*trendUp + 0.4*clamp01(finiteOr(ret20[i], 0)/0.10)

		breakoutScore := 0.0
		if breakoutConfirmed {
			breakoutScore = 1.0
		}
		volSurgeScore := 0.0
		if volSurgeRatio >= volSurgeMin {
			// at the threshold -> 0, at ~2.8x -> 1
			volSurgeScore = clamp01(volSurgeRatio - volSurgeMin)
		}

		var total float64
		if stage == StageWatch {
			total = 0.70*compressionScore + 0.30*trendScore
		} else {
			total = 0.45*compressionScore +
				0.15*trendScore +
				0.20*breakoutScore +
				0.20*clamp01(0.5+0.5*volSurgeScore)
		}

		cands = append(cands, Candidate{
			Ticker: series.Ticker,
			Date:   bars[i].Date,
			Stage:  stage,
			Entry:  entry,
			Stop:   stop,
			Target: target,
			Risk:   risk,
			Reward: reward,
			RR:     rr,
			Scores: map[string]float64{
				"compression": compressionScore,
				"trend":       trendScore,
				"breakout":    breakoutScore,
				"vol_surge":   volSurgeScore,
			},
			Score: 100.0 * clamp01(total),
		})
	}

	sortCandidates(cands)

	s.logger.WithFields(map[string]interface{}{
		"strategy":   s.Key(),
		"candidates": len(cands),
		"rejected":   fail,
	}).Info("Scan completed")

	return cands, nil
}
