package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/krxscan/internal/breadth"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/panelstore"
	"github.com/wonny/krxscan/internal/scan"
	"github.com/wonny/krxscan/internal/scancache"
	"github.com/wonny/krxscan/internal/universe"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/logger"
)

// writeScanSnapshots writes one daily snapshot per bar for two tickers.
// 005930 is shaped to produce exactly one pullback candidate (slow climb
// from 90 to 100, swing high 112, recent swing low 95) and carries the
// larger cap; 000220 is flat (no setup) but trades the larger volume, so
// the two rank attributes pick different top-1 universes. withCaps
// controls whether the snapshots carry a market_cap column.
func writeScanSnapshots(t *testing.T, snapshotDir string, withCaps bool) {
	t.Helper()
	const days = 130
	dir := filepath.Join(snapshotDir, "kospi")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	header := "date,ticker,open,high,low,close,volume\n"
	if withCaps {
		header = "date,ticker,open,high,low,close,volume,market_cap\n"
	}

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		c := 90 + 10*float64(i)/float64(days-1)
		h := c + 0.2
		l := c - 0.2
		if i == days-15 {
			h = 112
		}
		if i == days-5 {
			l = 95
		}
		date := base.AddDate(0, 0, i)
		var rows string
		if withCaps {
			rows = fmt.Sprintf("%s,005930,%g,%g,%g,%g,1000,1000000000000\n", market.DayKey(date), c, h, l, c) +
				fmt.Sprintf("%s,000220,50,50.2,49.8,50,50000,500000000000\n", market.DayKey(date))
		} else {
			rows = fmt.Sprintf("%s,005930,%g,%g,%g,%g,1000\n", market.DayKey(date), c, h, l, c) +
				fmt.Sprintf("%s,000220,50,50.2,49.8,50,50000\n", market.DayKey(date))
		}
		path := filepath.Join(dir, fmt.Sprintf("krx_ohlcv_%s.csv", market.DayKey(date)))
		require.NoError(t, os.WriteFile(path, []byte(header+rows), 0o644))
	}
}

type testEnv struct {
	runner *Runner
	cache  *scancache.Cache
}

func newTestRunner(t *testing.T, index IndexProvider) *testEnv {
	return newTestRunnerWith(t, index, nil, true)
}

func newTestRunnerWith(t *testing.T, index IndexProvider, caps CapsProvider, snapshotCaps bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	dataCfg := config.DataConfig{
		Dir:          root,
		SnapshotDir:  filepath.Join(root, "daily"),
		PanelDir:     filepath.Join(root, "panel"),
		ScanCacheDir: filepath.Join(root, "scan_cache"),
	}
	writeScanSnapshots(t, dataCfg.SnapshotDir, snapshotCaps)

	log := logger.NewNop()
	store := panelstore.New(dataCfg, log)
	cache := scancache.New(dataCfg, log)
	r := New(store, universe.New(log), cache, nil, index, caps, log)
	return &testEnv{runner: r, cache: cache}
}

func pullbackRequest() Request {
	return Request{
		Market:   market.KOSPI,
		TopN:     10,
		RankBy:   universe.ByMarketCap,
		Strategy: "pullback_rr",
		Params:   scan.DefaultParams(),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestRunner(t, nil)
	ctx := context.Background()

	resp, err := env.runner.Run(ctx, pullbackRequest())
	require.NoError(t, err)

	assert.Equal(t, market.KOSPI, resp.Market)
	assert.True(t, resp.BreadthOK)
	assert.False(t, resp.FromCache)
	assert.Len(t, resp.Signature, 64)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "005930", resp.Candidates[0].Ticker)
	require.Contains(t, resp.Levels, "005930")
	assert.InDelta(t, 100.0, resp.Levels["005930"].Entry, 1e-9)

	// Second identical run serves the cached result
	resp2, err := env.runner.Run(ctx, pullbackRequest())
	require.NoError(t, err)
	assert.True(t, resp2.FromCache)
	assert.Equal(t, resp.Signature, resp2.Signature)
	require.Len(t, resp2.Candidates, 1)
	assert.Equal(t, resp.Candidates[0].Ticker, resp2.Candidates[0].Ticker)
}

func TestRun_NoCacheRecomputes(t *testing.T) {
	env := newTestRunner(t, nil)
	ctx := context.Background()

	_, err := env.runner.Run(ctx, pullbackRequest())
	require.NoError(t, err)

	req := pullbackRequest()
	req.NoCache = true
	resp, err := env.runner.Run(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
}

type stubIndex struct {
	points []breadth.Point
	err    error
}

func (s *stubIndex) FetchSeries(ctx context.Context, m market.Market, days int) ([]breadth.Point, error) {
	return s.points, s.err
}

// fallingIndex is long enough for the moving averages and strictly
// declines, so every gate mode fails.
func fallingIndex() []breadth.Point {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]breadth.Point, 80)
	for i := range pts {
		pts[i] = breadth.Point{Date: base.AddDate(0, 0, i), Close: 3000 - 10*float64(i)}
	}
	return pts
}

func TestRun_BreadthGateClosed(t *testing.T) {
	env := newTestRunner(t, &stubIndex{points: fallingIndex()})
	ctx := context.Background()

	req := pullbackRequest()
	req.BreadthMode = breadth.CloseAboveMA20
	resp, err := env.runner.Run(ctx, req)
	require.NoError(t, err)

	assert.False(t, resp.BreadthOK)
	assert.NotEmpty(t, resp.BreadthNote)
	assert.Empty(t, resp.Candidates)
	assert.Empty(t, resp.Levels)

	// Suppressed scans leave nothing in the cache
	_, ok := env.cache.Get(resp.Signature)
	assert.False(t, ok)
}

func TestRun_IndexFailurePassesOpen(t *testing.T) {
	env := newTestRunner(t, &stubIndex{err: errors.New("naver unreachable")})
	ctx := context.Background()

	req := pullbackRequest()
	req.BreadthMode = breadth.Both
	resp, err := env.runner.Run(ctx, req)
	require.NoError(t, err)

	assert.True(t, resp.BreadthOK)
	assert.Contains(t, resp.BreadthNote, "passed")
	assert.Len(t, resp.Candidates, 1)
}

func TestRun_InvalidParams(t *testing.T) {
	env := newTestRunner(t, nil)

	req := pullbackRequest()
	req.Params.MinRR = -1
	_, err := env.runner.Run(context.Background(), req)

	var ipe *market.InvalidParamsError
	require.ErrorAs(t, err, &ipe)
}

// A rank_by change resolves a different universe, so it must change the
// signature and miss the cache: top-1 by market_cap is the pullback
// setup, top-1 by volume is the flat ticker with no candidates.
func TestRun_RankByChangesSignature(t *testing.T) {
	env := newTestRunner(t, nil)
	ctx := context.Background()

	req := pullbackRequest()
	req.TopN = 1
	resp1, err := env.runner.Run(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp1.Candidates, 1)
	assert.Equal(t, "005930", resp1.Candidates[0].Ticker)

	req.RankBy = universe.ByVolume
	resp2, err := env.runner.Run(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, resp1.Signature, resp2.Signature)
	assert.False(t, resp2.FromCache)
	assert.Empty(t, resp2.Candidates)
}

type stubCaps struct {
	calls int
	date  time.Time
	caps  map[string]float64
	err   error
}

func (s *stubCaps) FetchCaps(ctx context.Context, date time.Time, markets ...market.Market) (map[string]float64, error) {
	s.calls++
	s.date = date
	return s.caps, s.err
}

// A failed external cap fetch degrades to an empty map: every ticker is
// excluded fail-closed, the scan itself still completes. Strategies that
// never read caps must not trigger the fetch at all.
func TestRun_CapFetchFailureFailsClosed(t *testing.T) {
	caps := &stubCaps{err: errors.New("krx unreachable")}
	env := newTestRunnerWith(t, nil, caps, false)
	ctx := context.Background()

	// pullback ignores caps entirely
	resp, err := env.runner.Run(ctx, pullbackRequest())
	require.NoError(t, err)
	assert.Len(t, resp.Candidates, 1)
	assert.Zero(t, caps.calls)

	req := pullbackRequest()
	req.Strategy = "vol_compression_breakout"
	req.NoCache = true
	resp, err = env.runner.Run(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
	assert.Equal(t, 1, caps.calls)
}

func TestRun_CapFetchKeyedToPanelDate(t *testing.T) {
	caps := &stubCaps{caps: map[string]float64{}}
	env := newTestRunnerWith(t, nil, caps, false)

	req := pullbackRequest()
	req.Strategy = "vol_compression_breakout"
	resp, err := env.runner.Run(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, caps.calls)
	assert.Equal(t, resp.LatestDate, caps.date)
}

func TestRun_UnknownStrategy(t *testing.T) {
	env := newTestRunner(t, nil)

	req := pullbackRequest()
	req.Strategy = "momentum_xyz"
	_, err := env.runner.Run(context.Background(), req)
	require.Error(t, err)
}
