package panelstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/krxscan/internal/market"
)

// snapshot files follow data/daily/<market>/krx_ohlcv_YYYYMMDD.csv
var snapshotNameRe = regexp.MustCompile(`^krx_ohlcv_(\d{8})\.csv$`)

// SnapshotFile is a discovered daily snapshot keyed by its embedded date tag
type SnapshotFile struct {
	Path string
	Date time.Time
}

// ListSnapshots returns all snapshot files for a market, ascending by date.
// Temp files (_tmp_*) are skipped.
func ListSnapshots(snapshotDir string, m market.Market) ([]SnapshotFile, error) {
	dir := filepath.Join(snapshotDir, m.Dir())
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	files := make([]SnapshotFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "_tmp_") {
			continue
		}
		mm := snapshotNameRe.FindStringSubmatch(e.Name())
		if mm == nil {
			continue
		}
		d, err := market.ParseDay(mm[1])
		if err != nil {
			continue
		}
		files = append(files, SnapshotFile{Path: filepath.Join(dir, e.Name()), Date: d})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Date.Before(files[j].Date) })
	return files, nil
}

// requiredColumns must exist in the snapshot header
var requiredColumns = []string{"date", "ticker", "open", "high", "low", "close", "volume"}

// LoadSnapshot parses one daily snapshot CSV. A file lacking required
// columns is rejected with market.SchemaError. Rows missing a ticker or
// carrying an unparseable date are dropped and counted.
func LoadSnapshot(m market.Market, sf SnapshotFile) (*market.DailySnapshot, error) {
	f, err := os.Open(sf.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	return ReadSnapshot(m, filepath.Base(sf.Path), sf.Date, f)
}

// ReadSnapshot parses snapshot CSV content from a reader
func ReadSnapshot(m market.Market, source string, date time.Time, r io.Reader) (*market.DailySnapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read snapshot header %s: %w", source, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &market.SchemaError{Source: source, Missing: missing}
	}

	snap := &market.DailySnapshot{
		Market: m,
		Date:   date,
		Source: source,
	}
	_, snap.HasValue = idx["value"]
	_, snap.HasMarketCap = idx["market_cap"]
	_, snap.HasShares = idx["shares"]

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// malformed line, drop and continue
			snap.DroppedRows++
			continue
		}

		ticker := strings.TrimSpace(field(rec, idx, "ticker"))
		if ticker == "" {
			snap.DroppedRows++
			continue
		}
		d, err := market.ParseDay(field(rec, idx, "date"))
		if err != nil {
			snap.DroppedRows++
			continue
		}

		b := market.Bar{
			Ticker: market.NormalizeTicker(ticker),
			Date:   d,
			Open:   parseFloat(field(rec, idx, "open")),
			High:   parseFloat(field(rec, idx, "high")),
			Low:    parseFloat(field(rec, idx, "low")),
			Close:  parseFloat(field(rec, idx, "close")),
			Volume: parseInt(field(rec, idx, "volume")),

			Value:     market.NaN(),
			MarketCap: market.NaN(),
			Shares:    market.NaN(),
		}
		if snap.HasValue {
			b.Value = parseFloat(field(rec, idx, "value"))
		}
		if snap.HasMarketCap {
			b.MarketCap = parseFloat(field(rec, idx, "market_cap"))
		}
		if snap.HasShares {
			b.Shares = parseFloat(field(rec, idx, "shares"))
		}
		snap.Bars = append(snap.Bars, b)
	}

	return snap, nil
}

func field(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}
