package scancache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/scan"
)

// signaturePayload is the canonical serialization hashed into a cache key.
// Struct (not map) so field order, and therefore the hash, is reproducible.
type signaturePayload struct {
	LatestDate  string      `json:"latest_date"`
	Market      string      `json:"market"`
	TopN        int         `json:"top_n"`
	RankBy      string      `json:"rank_by"`
	Strategy    string      `json:"strategy"`
	BreadthMode string      `json:"breadth_mode"`
	Params      scan.Params `json:"params"`

	// scoring-weight identity; hardcoded weights are otherwise invisible
	// to the signature and would let stale entries survive a weight change
	ScoringTag string `json:"scoring_tag"`
}

// Signature computes the deterministic cache key over every input that
// affects a scan's output. Any parameter, universe or as-of-date change
// changes the signature. rankBy is the resolved rank attribute, so two
// requests that fall back to the same attribute share an entry.
func Signature(latestDate time.Time, m market.Market, topN int, rankBy string, strategy scan.Strategy, breadthMode string, params scan.Params) string {
	payload := signaturePayload{
		LatestDate:  market.DayKey(latestDate),
		Market:      m.String(),
		TopN:        topN,
		RankBy:      rankBy,
		Strategy:    strategy.Key(),
		BreadthMode: breadthMode,
		Params:      params,
		ScoringTag:  strategy.ScoringTag(),
	}

	// struct marshaling is deterministic; an error here is impossible for
	// this payload shape
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
