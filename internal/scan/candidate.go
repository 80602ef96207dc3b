package scan

import (
	"sort"
	"time"
)

// Stage classifies a vol-compression candidate. Empty for pullback_rr.
type Stage string

const (
	StageWatch    Stage = "WATCH"
	StageBreakout Stage = "BREAKOUT"
)

// rank orders BREAKOUT before WATCH in the output sort
func (s Stage) rank() int {
	switch s {
	case StageBreakout:
		return 0
	case StageWatch:
		return 1
	default:
		return 9
	}
}

// Candidate is one ranked scan result row
type Candidate struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Stage  Stage     `json:"stage,omitempty"`

	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
	Risk   float64 `json:"risk"`
	Reward float64 `json:"reward"`
	RR     float64 `json:"rr"`

	// named component sub-scores, each in [0, 1]
	Scores map[string]float64 `json:"scores"`

	// composite score in [0, 100]
	Score float64 `json:"score"`
}

// Level is the minimal projection a presentation layer needs to draw
// trade levels without recomputing the scan.
type Level struct {
	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
	RR     float64 `json:"rr"`
}

// Levels projects candidates to a ticker -> Level map. The first (best
// ranked) row wins when a ticker appears more than once.
func Levels(cands []Candidate) map[string]Level {
	out := make(map[string]Level, len(cands))
	for _, c := range cands {
		if _, seen := out[c.Ticker]; seen {
			continue
		}
		out[c.Ticker] = Level{Entry: c.Entry, Stop: c.Stop, Target: c.Target, RR: c.RR}
	}
	return out
}

// sortCandidates orders rows by stage (BREAKOUT first) then score
// descending. Stable: ties keep original group-iteration order.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Stage != cands[j].Stage {
			return cands[i].Stage.rank() < cands[j].Stage.rank()
		}
		return cands[i].Score > cands[j].Score
	})
}
