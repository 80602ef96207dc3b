package panelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/logger"
)

// Store maintains one deduplicated, sorted bar panel per market,
// incrementally merged from daily snapshots and persisted on disk.
// 읽기는 락 없이 동작; 쓰기는 temp+rename으로 원자적
type Store struct {
	snapshotDir string
	panelDir    string
	logger      *logger.Logger
}

// New creates a panel store over the configured data layout
func New(cfg config.DataConfig, log *logger.Logger) *Store {
	return &Store{
		snapshotDir: cfg.SnapshotDir,
		panelDir:    cfg.PanelDir,
		logger:      log,
	}
}

// Merge folds a daily snapshot into a panel. Duplicate (ticker,date) keys
// keep the last occurrence, so re-merging the same snapshot is a no-op.
// Bars with non-positive close are filtered out after every merge.
func Merge(p *market.Panel, snap *market.DailySnapshot) *market.Panel {
	out := &market.Panel{Market: snap.Market}
	if p != nil {
		out.Market = p.Market
		out.HasValue = p.HasValue
		out.HasMarketCap = p.HasMarketCap
		out.HasShares = p.HasShares
	}
	out.HasValue = out.HasValue || snap.HasValue
	out.HasMarketCap = out.HasMarketCap || snap.HasMarketCap
	out.HasShares = out.HasShares || snap.HasShares

	n := 0
	if p != nil {
		n = len(p.Bars)
	}

	// last occurrence wins per key
	seen := make(map[market.Key]market.Bar, n+len(snap.Bars))
	order := make([]market.Key, 0, n+len(snap.Bars))
	add := func(b market.Bar) {
		k := b.Key()
		if _, dup := seen[k]; !dup {
			order = append(order, k)
		}
		seen[k] = b
	}
	if p != nil {
		for _, b := range p.Bars {
			add(b)
		}
	}
	for _, b := range snap.Bars {
		add(b)
	}

	out.Bars = make([]market.Bar, 0, len(order))
	for _, k := range order {
		b := seen[k]
		if b.Close <= 0 {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	out.Sort()
	return out
}

// LoadOrRebuild loads the persisted panel for a market, rebuilding it from
// the full snapshot history when absent. Returns market.ErrDataUnavailable
// when neither exists.
func (s *Store) LoadOrRebuild(m market.Market) (*market.Panel, error) {
	if p, err := s.loadPanel(m); err == nil {
		return p, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("market", m).Warn("Persisted panel unreadable, rebuilding")
	}

	p, merged, err := s.rebuild(m)
	if err != nil {
		return nil, err
	}
	if merged == 0 {
		return nil, fmt.Errorf("market %s: %w", m, market.ErrDataUnavailable)
	}
	if err := s.persist(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Rebuild discards any persisted panel and folds the full snapshot
// history from scratch. Used after a historical backfill, where new
// snapshots may be older than the persisted panel's max date.
func (s *Store) Rebuild(m market.Market) (*market.Panel, error) {
	p, merged, err := s.rebuild(m)
	if err != nil {
		return nil, err
	}
	if merged == 0 {
		return nil, fmt.Errorf("market %s: %w", m, market.ErrDataUnavailable)
	}
	if err := s.persist(p); err != nil {
		return nil, err
	}
	return p, nil
}

// rebuild folds every available snapshot in ascending date order.
// Per-file failures are logged and skipped; they never abort the rebuild.
func (s *Store) rebuild(m market.Market) (*market.Panel, int, error) {
	files, err := ListSnapshots(s.snapshotDir, m)
	if err != nil {
		return nil, 0, err
	}

	p := &market.Panel{Market: m}
	merged := 0
	for _, sf := range files {
		snap, err := LoadSnapshot(m, sf)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"market": m,
				"file":   sf.Path,
			}).Warn("Skipping unreadable snapshot")
			continue
		}
		p = Merge(p, snap)
		merged++
	}

	s.logger.WithFields(map[string]interface{}{
		"market":    m,
		"snapshots": merged,
		"rows":      p.Len(),
	}).Info("Panel rebuilt from snapshot history")
	return p, merged, nil
}

// Refresh applies only snapshots dated strictly after the panel's current
// max date. When there is no new data the existing panel is returned
// unchanged (cheap no-op path). Returns the number of snapshots applied.
func (s *Store) Refresh(m market.Market) (*market.Panel, int, error) {
	p, err := s.LoadOrRebuild(m)
	if err != nil {
		return nil, 0, err
	}

	files, err := ListSnapshots(s.snapshotDir, m)
	if err != nil {
		return nil, 0, err
	}

	latest := p.LatestDate()
	applied := 0
	for _, sf := range files {
		if !sf.Date.After(latest) {
			continue
		}
		snap, err := LoadSnapshot(m, sf)
		if err != nil {
			s.logger.WithError(err).WithField("file", sf.Path).Warn("Skipping unreadable snapshot")
			continue
		}
		p = Merge(p, snap)
		applied++
	}

	if applied == 0 {
		s.logger.WithFields(map[string]interface{}{
			"market": m,
			"as_of":  market.DayKey(latest),
		}).Debug("Panel already up to date")
		return p, 0, nil
	}

	if err := s.persist(p); err != nil {
		return nil, applied, err
	}
	s.logger.WithFields(map[string]interface{}{
		"market":  m,
		"applied": applied,
		"as_of":   market.DayKey(p.LatestDate()),
		"rows":    p.Len(),
	}).Info("Panel refreshed")
	return p, applied, nil
}

// LatestKnownDate returns the max date of the persisted panel without
// loading snapshots. Zero time when no panel exists.
func (s *Store) LatestKnownDate(m market.Market) time.Time {
	p, err := s.loadPanel(m)
	if err != nil {
		return time.Time{}
	}
	return p.LatestDate()
}

func (s *Store) panelPath(m market.Market) string {
	return filepath.Join(s.panelDir, m.Dir()+".csv")
}
