package panelstore

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/wonny/krxscan/internal/market"
)

// loadPanel reads the persisted panel CSV for a market
func (s *Store) loadPanel(m market.Market) (*market.Panel, error) {
	f, err := os.Open(s.panelPath(m))
	if err != nil {
		return nil, fmt.Errorf("open panel: %w", err)
	}
	defer f.Close()

	// the panel file uses the snapshot column layout; the date tag is
	// carried per row, so no file-level date applies
	snap, err := ReadSnapshot(m, s.panelPath(m), time.Time{}, f)
	if err != nil {
		return nil, fmt.Errorf("read panel: %w", err)
	}

	p := &market.Panel{
		Market:       m,
		Bars:         snap.Bars,
		HasValue:     snap.HasValue,
		HasMarketCap: snap.HasMarketCap,
		HasShares:    snap.HasShares,
	}
	p.Sort()
	return p, nil
}

// persist writes the panel atomically: write to a temp file in the target
// directory, then rename over the destination. Readers never observe a
// half-written panel.
func (s *Store) persist(p *market.Panel) error {
	if err := os.MkdirAll(s.panelDir, 0o755); err != nil {
		return fmt.Errorf("create panel dir: %w", err)
	}
	dst := s.panelPath(p.Market)

	tmp, err := os.CreateTemp(s.panelDir, "_tmp_panel_*.csv")
	if err != nil {
		return fmt.Errorf("create temp panel: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writePanelCSV(tmp, p); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp panel: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("replace panel: %w", err)
	}
	return nil
}

func writePanelCSV(f *os.File, p *market.Panel) error {
	w := csv.NewWriter(f)

	header := []string{"date", "ticker", "open", "high", "low", "close", "volume"}
	if p.HasValue {
		header = append(header, "value")
	}
	if p.HasMarketCap {
		header = append(header, "market_cap")
	}
	if p.HasShares {
		header = append(header, "shares")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write panel header: %w", err)
	}

	for _, b := range p.Bars {
		rec := []string{
			market.DayKey(b.Date),
			b.Ticker,
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if p.HasValue {
			rec = append(rec, formatFloat(b.Value))
		}
		if p.HasMarketCap {
			rec = append(rec, formatFloat(b.MarketCap))
		}
		if p.HasShares {
			rec = append(rec, formatFloat(b.Shares))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write panel row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
