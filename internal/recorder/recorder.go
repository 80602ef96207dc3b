package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// Recorder appends scan run history to a local SQLite file. It is
// best effort: callers log failures and keep going, a scan never fails
// because history could not be written.
type Recorder struct {
	db     *sql.DB
	logger *logger.Logger
}

// Run is one recorded scan execution
type Run struct {
	ID         int64
	Market     market.Market
	ScanDate   time.Time
	Strategy   string
	Signature  string
	Candidates int
	Breakouts  int
	FromCache  bool
	DurationMS int64
	CreatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	market      TEXT NOT NULL,
	scan_date   TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	signature   TEXT NOT NULL,
	candidates  INTEGER NOT NULL,
	breakouts   INTEGER NOT NULL,
	from_cache  INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_runs_date ON scan_runs(scan_date, market, strategy);
`

// Open opens (or creates) the history database
func Open(path string, log *logger.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// single writer, local file
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	log.WithField("path", path).Debug("Scan history database opened")
	return &Recorder{db: db, logger: log}, nil
}

// Close closes the database
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record appends one run row
func (r *Recorder) Record(ctx context.Context, run Run) error {
	fromCache := 0
	if run.FromCache {
		fromCache = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_runs (market, scan_date, strategy, signature, candidates, breakouts, from_cache, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Market.String(),
		market.DayKey(run.ScanDate),
		run.Strategy,
		run.Signature,
		run.Candidates,
		run.Breakouts,
		fromCache,
		run.DurationMS,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record scan run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, market, scan_date, strategy, signature, candidates, breakouts, from_cache, duration_ms, created_at
		 FROM scan_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run       Run
			mkt       string
			scanDate  string
			fromCache int
			createdAt string
		)
		if err := rows.Scan(&run.ID, &mkt, &scanDate, &run.Strategy, &run.Signature,
			&run.Candidates, &run.Breakouts, &fromCache, &run.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		m, err := market.Parse(mkt)
		if err == nil {
			run.Market = m
		}
		if d, err := market.ParseDay(scanDate); err == nil {
			run.ScanDate = d
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			run.CreatedAt = t
		}
		run.FromCache = fromCache != 0
		out = append(out, run)
	}
	return out, rows.Err()
}
