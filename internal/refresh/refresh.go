package refresh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// Job runs a once-per-day background refresh guarded by a best-effort
// exclusive-create lock file. Losers of the race skip; they never block
// or retry. Completion is observed only via the persisted done marker.
type Job struct {
	lockDir string
	logger  *logger.Logger
}

// New creates a daily job over the configured lock directory
func New(lockDir string, log *logger.Logger) *Job {
	return &Job{lockDir: lockDir, logger: log}
}

// State of today's job
type State string

const (
	NotStarted State = "not_started"
	Done       State = "done"
)

// Today reports whether today's refresh already completed
func (j *Job) Today() State {
	if _, err := os.Stat(j.donePath(time.Now())); err == nil {
		return Done
	}
	return NotStarted
}

// TryRunOnce starts fn in a detached goroutine if today's refresh has not
// completed and the lock can be acquired atomically. Returns true when
// this caller started the job.
func (j *Job) TryRunOnce(fn func() error) bool {
	now := time.Now()
	lock := j.lockPath(now)
	done := j.donePath(now)

	if _, err := os.Stat(done); err == nil {
		return false
	}

	if err := os.MkdirAll(j.lockDir, 0o755); err != nil {
		j.logger.WithError(err).Warn("Cannot create lock dir, skipping refresh")
		return false
	}

	// atomic create: exactly one concurrent caller wins
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			j.logger.WithError(err).Warn("Lock acquire failed, skipping refresh")
		}
		return false
	}
	f.Close()

	go func() {
		defer os.Remove(lock)

		start := time.Now()
		if err := fn(); err != nil {
			j.logger.WithError(err).Error("Daily refresh failed")
			return
		}

		// success marker; failure leaves no marker so a later trigger retries
		if err := os.WriteFile(done, []byte("ok"), 0o644); err != nil {
			j.logger.WithError(err).Warn("Cannot write done marker")
			return
		}
		j.logger.WithFields(map[string]interface{}{
			"day":      market.DayKey(start),
			"duration": time.Since(start).String(),
		}).Info("Daily refresh completed")
	}()

	return true
}

func (j *Job) lockPath(t time.Time) string {
	return filepath.Join(j.lockDir, fmt.Sprintf("daily_%s.lock", market.DayKey(t)))
}

func (j *Job) donePath(t time.Time) string {
	return filepath.Join(j.lockDir, fmt.Sprintf("daily_%s.done", market.DayKey(t)))
}
