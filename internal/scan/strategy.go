package scan

import (
	"fmt"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/logger"
)

// Input carries everything a strategy consumes besides the panel itself
type Input struct {
	Params Params

	// Caps is the external market-cap snapshot keyed by ticker, consumed
	// by the vol-compression liquidity gate. Missing tickers count as
	// cap 0 and are excluded (fail-closed).
	Caps map[string]float64
}

// Strategy is one scan variant. Implementations are pure with respect to
// their inputs: same panel + input, same candidates.
type Strategy interface {
	Key() string
	Name() string

	// ScoringTag identifies the scoring-weight build of the strategy and
	// is folded into the result-cache signature, so weight changes
	// invalidate cached results.
	ScoringTag() string

	// UsesCaps reports whether Scan reads Input.Caps. Callers skip cap
	// resolution entirely for strategies that never consume it.
	UsesCaps() bool

	Scan(p *market.Panel, in Input) ([]Candidate, error)
}

// Registry returns the closed set of scan strategies in display order
func Registry(log *logger.Logger) []Strategy {
	return []Strategy{
		NewPullbackRR(log),
		NewVolCompressionBreakout(log),
	}
}

// Get resolves a strategy by key
func Get(log *logger.Logger, key string) (Strategy, error) {
	for _, s := range Registry(log) {
		if s.Key() == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown strategy: %q", key)
}
