package runner

import (
	"context"
	"time"

	"github.com/wonny/krxscan/internal/breadth"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/panelstore"
	"github.com/wonny/krxscan/internal/recorder"
	"github.com/wonny/krxscan/internal/scan"
	"github.com/wonny/krxscan/internal/scancache"
	"github.com/wonny/krxscan/internal/universe"
	"github.com/wonny/krxscan/pkg/logger"
)

// IndexProvider supplies index closes for the breadth gate
type IndexProvider interface {
	FetchSeries(ctx context.Context, m market.Market, days int) ([]breadth.Point, error)
}

// CapsProvider supplies an external market-cap snapshot. Used only when
// the panel itself carries no market_cap column.
type CapsProvider interface {
	FetchCaps(ctx context.Context, date time.Time, markets ...market.Market) (map[string]float64, error)
}

// Runner wires panel loading, universe selection, the breadth gate, the
// result cache and the strategy into one scan execution.
// ⭐ SSOT: 스캔 실행 순서는 여기서만 정의
type Runner struct {
	store    *panelstore.Store
	selector *universe.Selector
	cache    *scancache.Cache
	recorder *recorder.Recorder // nil = history disabled
	index    IndexProvider      // nil = breadth gate passes open
	caps     CapsProvider       // nil = panel column only
	logger   *logger.Logger
}

// New creates a runner. recorder, index and caps may be nil.
func New(store *panelstore.Store, selector *universe.Selector, cache *scancache.Cache,
	rec *recorder.Recorder, index IndexProvider, caps CapsProvider, log *logger.Logger) *Runner {
	return &Runner{
		store:    store,
		selector: selector,
		cache:    cache,
		recorder: rec,
		index:    index,
		caps:     caps,
		logger:   log,
	}
}

// Request is one scan invocation
type Request struct {
	Market      market.Market
	TopN        int
	RankBy      universe.RankBy
	Strategy    string
	Params      scan.Params
	BreadthMode breadth.Mode
	NoCache     bool // bypass the result cache, recompute and overwrite
}

// Response is the scan outcome
type Response struct {
	Market      market.Market         `json:"market"`
	LatestDate  time.Time             `json:"latest_date"`
	Strategy    string                `json:"strategy"`
	Signature   string                `json:"signature"`
	FromCache   bool                  `json:"from_cache"`
	BreadthOK   bool                  `json:"breadth_ok"`
	BreadthNote string                `json:"breadth_note"`
	Universe    universe.Info         `json:"universe"`
	Candidates  []scan.Candidate      `json:"candidates"`
	Levels      map[string]scan.Level `json:"levels"`
	Elapsed     time.Duration         `json:"-"`
}

// Run executes one scan end to end. The breadth gate is checked before
// the strategy: a closed market returns an empty result that is NOT
// cached, since the gate depends on live index data, not on the
// signature inputs.
func (r *Runner) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	strat, err := scan.Get(r.logger, req.Strategy)
	if err != nil {
		return nil, err
	}
	if req.BreadthMode == "" {
		req.BreadthMode = breadth.Off
	}

	panel, err := r.store.LoadOrRebuild(req.Market)
	if err != nil {
		return nil, err
	}

	uniPanel, info, err := r.selector.Select(panel, req.TopN, req.RankBy)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Market:     req.Market,
		LatestDate: panel.LatestDate(),
		Strategy:   strat.Key(),
		Universe:   info,
		Candidates: []scan.Candidate{},
		Levels:     map[string]scan.Level{},
	}
	// the resolved rank attribute identifies the universe; a rank_by
	// change selects different tickers and must miss the cache
	resp.Signature = scancache.Signature(resp.LatestDate, req.Market, req.TopN, string(info.RankBy), strat, string(req.BreadthMode), req.Params)

	resp.BreadthOK, resp.BreadthNote = r.checkBreadth(ctx, req.Market, req.BreadthMode)
	if !resp.BreadthOK {
		resp.Elapsed = time.Since(start)
		r.logger.WithFields(map[string]interface{}{
			"market": req.Market.String(),
			"note":   resp.BreadthNote,
		}).Info("Breadth gate closed, scan suppressed")
		return resp, nil
	}

	if !req.NoCache {
		if e, ok := r.cache.Get(resp.Signature); ok {
			resp.Candidates = e.Candidates
			resp.Levels = e.Levels
			resp.FromCache = true
			resp.Elapsed = time.Since(start)
			r.record(ctx, req, resp)
			return resp, nil
		}
	}

	in := scan.Input{Params: req.Params}
	if strat.UsesCaps() {
		in.Caps = r.resolveCaps(ctx, req.Market, uniPanel)
	}

	cands, err := strat.Scan(uniPanel, in)
	if err != nil {
		return nil, err
	}
	resp.Candidates = cands
	resp.Levels = scan.Levels(cands)

	if err := r.cache.Put(resp.Signature, &scancache.Entry{Candidates: cands, Levels: resp.Levels}); err != nil {
		// cache write failure degrades to recompute-next-time
		r.logger.WithError(err).Warn("Scan cache write failed")
	}

	resp.Elapsed = time.Since(start)
	r.record(ctx, req, resp)

	r.logger.WithFields(map[string]interface{}{
		"market":     req.Market.String(),
		"strategy":   strat.Key(),
		"candidates": len(cands),
		"elapsed":    resp.Elapsed.String(),
	}).Info("Scan completed")
	return resp, nil
}

// checkBreadth evaluates the market gate. Index fetch failures pass
// open with a reason.
func (r *Runner) checkBreadth(ctx context.Context, m market.Market, mode breadth.Mode) (bool, string) {
	if mode == breadth.Off {
		return breadth.OK(nil, breadth.Off)
	}
	if r.index == nil {
		return true, "Index provider not configured (passed)."
	}
	points, err := r.index.FetchSeries(ctx, m, 130)
	if err != nil {
		r.logger.WithError(err).Warn("Index fetch failed, breadth gate passes open")
		return true, "Index data not available (passed)."
	}
	return breadth.OK(breadth.Build(points), mode)
}

// resolveCaps builds the market-cap snapshot for the scan input. The
// panel's own latest-date column is preferred; the external provider is
// a fallback for cap-less panels, keyed to the panel's as-of date. A
// failed fetch degrades to an empty map: tickers without a cap are
// excluded fail-closed, the scan itself proceeds.
func (r *Runner) resolveCaps(ctx context.Context, m market.Market, p *market.Panel) map[string]float64 {
	if p.HasMarketCap {
		latest := p.LatestDate()
		caps := make(map[string]float64)
		for _, b := range p.Bars {
			if b.Date.Equal(latest) && b.MarketCap == b.MarketCap { // skip NaN
				caps[b.Ticker] = b.MarketCap
			}
		}
		return caps
	}
	if r.caps == nil {
		return nil
	}
	caps, err := r.caps.FetchCaps(ctx, p.LatestDate(), m)
	if err != nil {
		r.logger.WithError(err).Warn("Cap snapshot fetch failed, scanning with empty caps")
		return map[string]float64{}
	}
	return caps
}

// record appends run history when a recorder is configured; best effort
func (r *Runner) record(ctx context.Context, req Request, resp *Response) {
	if r.recorder == nil {
		return
	}
	breakouts := 0
	for _, c := range resp.Candidates {
		if c.Stage == scan.StageBreakout {
			breakouts++
		}
	}
	err := r.recorder.Record(ctx, recorder.Run{
		Market:     req.Market,
		ScanDate:   resp.LatestDate,
		Strategy:   resp.Strategy,
		Signature:  resp.Signature,
		Candidates: len(resp.Candidates),
		Breakouts:  breakouts,
		FromCache:  resp.FromCache,
		DurationMS: resp.Elapsed.Milliseconds(),
	})
	if err != nil {
		r.logger.WithError(err).Warn("Scan history write failed")
	}
}
