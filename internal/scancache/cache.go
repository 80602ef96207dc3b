package scancache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wonny/krxscan/internal/scan"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/logger"
)

// Cache memoizes scan output on disk keyed by signature. Entries are
// written once per unique signature and never mutated; a new as-of date
// produces a new signature, so stale entries simply stop being requested.
// 쓰기는 temp+rename으로 원자적; 동시 기록은 last-writer-wins로 수렴
type Cache struct {
	dir    string
	logger *logger.Logger
}

// New creates a cache over the configured directory
func New(cfg config.DataConfig, log *logger.Logger) *Cache {
	return &Cache{dir: cfg.ScanCacheDir, logger: log}
}

// Entry is one memoized scan result
type Entry struct {
	Candidates []scan.Candidate      `json:"candidates"`
	Levels     map[string]scan.Level `json:"levels"`
}

// Get returns the entry for a signature, or (nil, false) on miss.
// A corrupt entry is removed and reported as a miss; the caller
// recomputes and overwrites.
func (c *Cache) Get(sig string) (*Entry, bool) {
	data, err := os.ReadFile(c.scanPath(sig))
	if err != nil {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.WithError(err).WithField("signature", sig).Warn("Removing corrupt scan cache entry")
		_ = os.Remove(c.scanPath(sig))
		_ = os.Remove(c.levelsPath(sig))
		return nil, false
	}
	return &e, true
}

// Put stores an entry for a signature, replacing any previous content
func (c *Cache) Put(sig string, e *Entry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create scan cache dir: %w", err)
	}
	if err := c.writeJSON(c.scanPath(sig), e); err != nil {
		return err
	}
	// levels are persisted separately so the presentation layer can read
	// them without deserializing the full candidate list
	return c.writeJSON(c.levelsPath(sig), e.Levels)
}

// GetLevels returns only the levels projection for a signature
func (c *Cache) GetLevels(sig string) (map[string]scan.Level, bool) {
	data, err := os.ReadFile(c.levelsPath(sig))
	if err != nil {
		return nil, false
	}
	var levels map[string]scan.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		c.logger.WithError(err).WithField("signature", sig).Warn("Removing corrupt levels cache entry")
		_ = os.Remove(c.levelsPath(sig))
		return nil, false
	}
	return levels, true
}

// writeJSON writes atomically: temp file in the target dir, then rename.
// Readers never observe a half-written entry.
func (c *Cache) writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "_tmp_cache_*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}

func (c *Cache) scanPath(sig string) string {
	return filepath.Join(c.dir, "scan_"+sig+".json")
}

func (c *Cache) levelsPath(sig string) string {
	return filepath.Join(c.dir, "levels_"+sig+".json")
}
