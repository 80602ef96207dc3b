package market

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDataUnavailable signals that a market has neither a persisted panel
// nor any daily snapshot to rebuild from.
var ErrDataUnavailable = errors.New("data unavailable")

// ErrNoRankColumn signals that the universe selector found no usable
// ranking attribute.
var ErrNoRankColumn = errors.New("no usable rank column (need market_cap, value or volume)")

// SchemaError reports a snapshot missing required columns. The unit of
// input is rejected; other inputs proceed.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("snapshot %s: missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
}

// InvalidParamsError reports scan params failing invariant checks.
// Rejected before any computation.
type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid scan params: %s %s", e.Field, e.Reason)
}
