package krx

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/logger"
)

// Downloader persists KRX daily snapshots as CSV files that the panel
// store can replay.
// ⭐ SSOT: 스냅샷 CSV 파일 생성은 여기서만
type Downloader struct {
	client      *Client
	snapshotDir string
	minRows     map[string]int
	logger      *logger.Logger
}

// NewDownloader creates a snapshot downloader
func NewDownloader(client *Client, dataCfg config.DataConfig, krxCfg config.KRXConfig, log *logger.Logger) *Downloader {
	return &Downloader{
		client:      client,
		snapshotDir: dataCfg.SnapshotDir,
		minRows:     krxCfg.MinRows,
		logger:      log,
	}
}

// Result describes one snapshot download attempt
type Result struct {
	Market  market.Market
	Date    time.Time
	Path    string
	Rows    int
	Skipped bool // file already existed
}

// SnapshotPath returns the canonical snapshot file path for a market/date
func (d *Downloader) SnapshotPath(m market.Market, date time.Time) string {
	name := fmt.Sprintf("krx_ohlcv_%s.csv", market.DayKey(date))
	return filepath.Join(d.snapshotDir, m.Dir(), name)
}

// DownloadDaily fetches and persists one market's snapshot for a date.
// An existing file is kept unless force is set. A result below the
// market's minimum row count is rejected as a holiday or partial feed.
func (d *Downloader) DownloadDaily(ctx context.Context, m market.Market, date time.Time, force bool) (*Result, error) {
	date = market.Day(date)
	path := d.SnapshotPath(m, date)

	if !force {
		if _, err := os.Stat(path); err == nil {
			d.logger.WithFields(map[string]interface{}{
				"market": m.String(),
				"path":   path,
			}).Debug("Snapshot already downloaded, skipping")
			return &Result{Market: m, Date: date, Path: path, Skipped: true}, nil
		}
	}

	snap, err := d.client.FetchDaily(ctx, m, date)
	if err != nil {
		return nil, err
	}
	if min, ok := d.minRows[m.String()]; ok && len(snap.Bars) < min {
		return nil, fmt.Errorf("market %s on %s returned %d rows (min %d): %w",
			m, market.DayKey(date), len(snap.Bars), min, market.ErrDataUnavailable)
	}

	if err := d.writeSnapshotCSV(path, snap); err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"market": m.String(),
		"date":   market.DayKey(date),
		"rows":   len(snap.Bars),
		"path":   path,
	}).Info("Snapshot downloaded")

	return &Result{Market: m, Date: date, Path: path, Rows: len(snap.Bars)}, nil
}

// DownloadLatest walks back from the given day to the most recent
// trading day (up to maxBack calendar days) and downloads it.
func (d *Downloader) DownloadLatest(ctx context.Context, m market.Market, from time.Time, force bool) (*Result, error) {
	const maxBack = 10
	day := market.Day(from)
	// Before the 16:00 close the portal serves an incomplete table
	if from.Hour() < 16 {
		day = day.AddDate(0, 0, -1)
	}

	var lastErr error
	for i := 0; i < maxBack; i++ {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}
		res, err := d.DownloadDaily(ctx, m, day, force)
		if err == nil {
			return res, nil
		}
		lastErr = err
		d.logger.WithFields(map[string]interface{}{
			"market": m.String(),
			"date":   market.DayKey(day),
		}).WithError(err).Debug("No snapshot for day, walking back")
		day = day.AddDate(0, 0, -1)
	}
	return nil, fmt.Errorf("no trading day within %d days of %s: %w", maxBack, market.DayKey(from), lastErr)
}

// Bootstrap downloads every trading day in [start, end] for a market.
// Failures on individual days are logged and skipped so a long backfill
// survives sporadic holidays.
func (d *Downloader) Bootstrap(ctx context.Context, m market.Market, start, end time.Time, force bool) (downloaded, skipped, failed int, err error) {
	start, end = market.Day(start), market.Day(end)
	if end.Before(start) {
		return 0, 0, 0, fmt.Errorf("bootstrap range inverted: %s > %s", market.DayKey(start), market.DayKey(end))
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return downloaded, skipped, failed, err
		}
		res, err := d.DownloadDaily(ctx, m, day, force)
		if err != nil {
			failed++
			d.logger.WithFields(map[string]interface{}{
				"market": m.String(),
				"date":   market.DayKey(day),
			}).WithError(err).Warn("Bootstrap day failed, skipping")
			continue
		}
		if res.Skipped {
			skipped++
		} else {
			downloaded++
		}
	}

	d.logger.WithFields(map[string]interface{}{
		"market":     m.String(),
		"start":      market.DayKey(start),
		"end":        market.DayKey(end),
		"downloaded": downloaded,
		"skipped":    skipped,
		"failed":     failed,
	}).Info("Bootstrap completed")
	return downloaded, skipped, failed, nil
}

// writeSnapshotCSV writes a snapshot atomically: temp file then rename
func (d *Downloader) writeSnapshotCSV(path string, snap *market.DailySnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "_tmp_snapshot_*.csv")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := []string{"date", "ticker", "open", "high", "low", "close", "volume", "value", "market_cap", "shares"}
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot header: %w", err)
	}
	for _, b := range snap.Bars {
		rec := []string{
			market.DayKey(b.Date),
			b.Ticker,
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
			strconv.FormatFloat(b.Value, 'f', -1, 64),
			strconv.FormatFloat(b.MarketCap, 'f', -1, 64),
			strconv.FormatFloat(b.Shares, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write snapshot row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	return nil
}
