package scan

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/krxscan/internal/market"
)

// Params is the immutable scan configuration shared by both strategies
type Params struct {
	// |close - ma20| / ma20 허용 비율. Strategy B는 ma20/ma60 gap 한도로 재사용
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// stop = (N일 최저가) * (1 - StopBuffer)
	StopLookback int     `yaml:"stop_lookback" json:"stop_lookback"`
	StopBuffer   float64 `yaml:"stop_buffer" json:"stop_buffer"`

	// target = M일 최고가
	TargetLookback int `yaml:"target_lookback" json:"target_lookback"`

	MinRR float64 `yaml:"min_rr" json:"min_rr"`

	// MA5 연속 상승 요구 일수 (0 = 비활성, 1..5)
	MA5UpDays int `yaml:"ma5_up_days" json:"ma5_up_days"`
}

// DefaultParams returns the baseline configuration
func DefaultParams() Params {
	return Params{
		Tolerance:      0.03,
		StopLookback:   10,
		StopBuffer:     0.005,
		TargetLookback: 20,
		MinRR:          1.5,
		MA5UpDays:      0,
	}
}

// Validate checks the param invariants. Violations reject the scan before
// any computation.
func (p Params) Validate() error {
	if p.Tolerance < 0 || p.Tolerance >= 1 {
		return &market.InvalidParamsError{Field: "tolerance", Reason: "must be in [0, 1)"}
	}
	if p.StopBuffer < 0 || p.StopBuffer >= 1 {
		return &market.InvalidParamsError{Field: "stop_buffer", Reason: "must be in [0, 1)"}
	}
	if p.StopLookback <= 0 {
		return &market.InvalidParamsError{Field: "stop_lookback", Reason: "must be a positive integer"}
	}
	if p.TargetLookback <= 0 {
		return &market.InvalidParamsError{Field: "target_lookback", Reason: "must be a positive integer"}
	}
	if p.MinRR <= 0 {
		return &market.InvalidParamsError{Field: "min_rr", Reason: "must be positive"}
	}
	if p.MA5UpDays < 0 || p.MA5UpDays > 5 {
		return &market.InvalidParamsError{Field: "ma5_up_days", Reason: "must be in 0..5"}
	}
	return nil
}

// LoadParams reads a YAML params file. Unknown fields fail immediately
// so typos cannot silently fall back to defaults.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params file: %w", err)
	}

	p := DefaultParams()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Params{}, fmt.Errorf("parse params file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
