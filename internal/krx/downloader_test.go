package krx

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/panelstore"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/logger"
)

func newTestDownloader(t *testing.T, handler http.HandlerFunc, minRows map[string]int) *Downloader {
	t.Helper()
	client, _ := newTestClient(t, handler)
	dataCfg := config.DataConfig{SnapshotDir: t.TempDir()}
	return NewDownloader(client, dataCfg, config.KRXConfig{MinRows: minRows}, logger.NewNop())
}

func TestDownloadDaily_RoundTrip(t *testing.T) {
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"OutBlock_1":[
			{"ISU_SRT_CD":"5930","TDD_OPNPRC":"70,100","TDD_HGPRC":"71,500","TDD_LWPRC":"69,800","TDD_CLSPRC":"71,200","ACC_TRDVOL":"12,345","ACC_TRDVAL":"1,000","MKTCAP":"2,000","LIST_SHRS":"3,000"},
			{"ISU_SRT_CD":"000660","TDD_OPNPRC":"100","TDD_HGPRC":"110","TDD_LWPRC":"90","TDD_CLSPRC":"105","ACC_TRDVOL":"500","ACC_TRDVAL":"50","MKTCAP":"60","LIST_SHRS":"70"}
		]}`))
	}, nil)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	res, err := d.DownloadDaily(context.Background(), market.KOSPI, date, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, filepath.Join(d.snapshotDir, "kospi", "krx_ohlcv_20260825.csv"), res.Path)

	// The written CSV must replay through the panel store reader unchanged
	f, err := os.Open(res.Path)
	require.NoError(t, err)
	defer f.Close()

	snap, err := panelstore.ReadSnapshot(market.KOSPI, res.Path, date, f)
	require.NoError(t, err)
	require.Len(t, snap.Bars, 2)
	assert.True(t, snap.HasValue)
	assert.True(t, snap.HasMarketCap)
	assert.True(t, snap.HasShares)

	b := snap.Bars[0]
	assert.Equal(t, "005930", b.Ticker)
	assert.Equal(t, 71200.0, b.Close)
	assert.Equal(t, int64(12345), b.Volume)
	assert.Equal(t, 2000.0, b.MarketCap)
}

func TestDownloadDaily_SkipsExisting(t *testing.T) {
	var hits int
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"OutBlock_1":[]}`))
	}, nil)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	path := d.SnapshotPath(market.KOSPI, date)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("date,ticker\n"), 0o644))

	res, err := d.DownloadDaily(context.Background(), market.KOSPI, date, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, hits)
}

func TestDownloadDaily_MinRowsRejects(t *testing.T) {
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","TDD_CLSPRC":"100"}]}`))
	}, map[string]int{"KOSPI": 500})

	_, err := d.DownloadDaily(context.Background(), market.KOSPI, time.Now(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestDownloadLatest_WalksBackOverWeekend(t *testing.T) {
	var dates []string
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		trdDd := r.PostForm.Get("trdDd")
		dates = append(dates, trdDd)
		if trdDd == "20260828" { // Friday
			w.Write([]byte(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","TDD_CLSPRC":"100"}]}`))
			return
		}
		w.Write([]byte(`{"OutBlock_1":[]}`))
	}, map[string]int{"KOSPI": 1})

	// Sunday evening: Saturday and Sunday are skipped without a request
	from := time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC)
	res, err := d.DownloadLatest(context.Background(), market.KOSPI, from, false)
	require.NoError(t, err)
	assert.Equal(t, "20260828", market.DayKey(res.Date))
	assert.Equal(t, []string{"20260828"}, dates)
}

func TestDownloadLatest_BeforeCloseUsesPreviousDay(t *testing.T) {
	var first string
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if first == "" {
			first = r.PostForm.Get("trdDd")
		}
		w.Write([]byte(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","TDD_CLSPRC":"100"}]}`))
	}, nil)

	// Tuesday 10:00: the portal still serves a partial table for today
	from := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	res, err := d.DownloadLatest(context.Background(), market.KOSPI, from, false)
	require.NoError(t, err)
	assert.Equal(t, "20260824", first)
	assert.Equal(t, "20260824", market.DayKey(res.Date))
}

func TestBootstrap(t *testing.T) {
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("trdDd") == "20260824" { // Monday, feed outage
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"OutBlock_1":[{"ISU_SRT_CD":"005930","TDD_CLSPRC":"100"}]}`))
	}, nil)

	// Pre-existing Friday snapshot counts as skipped
	friday := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	path := d.SnapshotPath(market.KOSPI, friday)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("date,ticker\n"), 0o644))

	// Friday through Tuesday: weekend days never hit the network
	start := friday
	end := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	downloaded, skipped, failed, err := d.Bootstrap(context.Background(), market.KOSPI, start, end, false)
	require.NoError(t, err)
	assert.Equal(t, 1, downloaded) // Tuesday
	assert.Equal(t, 1, skipped)    // Friday
	assert.Equal(t, 1, failed)     // Monday
}

func TestBootstrap_InvertedRange(t *testing.T) {
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	_, _, _, err := d.Bootstrap(context.Background(), market.KOSPI,
		time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), false)
	assert.Error(t, err)
}
