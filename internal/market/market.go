package market

import (
	"fmt"
	"strings"
)

// Market identifies a KRX market segment
type Market string

const (
	KOSPI  Market = "KOSPI"
	KOSDAQ Market = "KOSDAQ"
)

// All returns every supported market
func All() []Market {
	return []Market{KOSPI, KOSDAQ}
}

// Parse normalizes a market name. "kq" is accepted as KOSDAQ shorthand.
func Parse(s string) (Market, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kospi", "ks", "":
		return KOSPI, nil
	case "kosdaq", "kq":
		return KOSDAQ, nil
	default:
		return "", fmt.Errorf("unknown market: %q (want KOSPI or KOSDAQ)", s)
	}
}

// Dir returns the on-disk directory name for the market
func (m Market) Dir() string {
	return strings.ToLower(string(m))
}

func (m Market) String() string {
	return string(m)
}
