package position

import "math"

// Size is the share quantity and risk breakdown for one trade
type Size struct {
	RiskBudget   float64 `json:"risk_budget"`
	PerShareRisk float64 `json:"per_share_risk"`
	Qty          int64   `json:"qty"`
	Invest       float64 `json:"invest"`
	LossAtStop   float64 `json:"loss_at_stop"`
}

// Calc converts capital, risk fraction and entry/stop levels into a share
// quantity. maxInvestPct caps the position's notional as a fraction of
// capital. Returns nil when entry <= stop (no defined risk).
func Calc(capital, riskPct, entry, stop, maxInvestPct float64) *Size {
	if entry <= stop {
		return nil
	}

	riskBudget := capital * riskPct
	perShareRisk := entry - stop

	qty := int64(math.Floor(riskBudget / perShareRisk))
	if qty < 0 {
		qty = 0
	}

	invest := float64(qty) * entry

	investCap := capital * maxInvestPct
	if invest > investCap && entry > 0 {
		qty = int64(math.Floor(investCap / entry))
		invest = float64(qty) * entry
	}

	return &Size{
		RiskBudget:   riskBudget,
		PerShareRisk: perShareRisk,
		Qty:          qty,
		Invest:       invest,
		LossAtStop:   float64(qty) * perShareRisk,
	}
}
