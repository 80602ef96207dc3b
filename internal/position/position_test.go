package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalc(t *testing.T) {
	// 자본 1천만, 리스크 1%, entry 10,000 / stop 9,500
	s := Calc(10_000_000, 0.01, 10_000, 9_500, 1.0)
	require.NotNil(t, s)

	assert.Equal(t, 100_000.0, s.RiskBudget)
	assert.Equal(t, 500.0, s.PerShareRisk)
	assert.Equal(t, int64(200), s.Qty)
	assert.Equal(t, 2_000_000.0, s.Invest)
	assert.Equal(t, 100_000.0, s.LossAtStop)
}

func TestCalc_InvestCap(t *testing.T) {
	// 타이트한 손절은 수량을 키우지만 투자금 상한이 먼저 잡는다
	s := Calc(10_000_000, 0.01, 10_000, 9_990, 0.10)
	require.NotNil(t, s)

	assert.Equal(t, int64(100), s.Qty) // 1,000,000 / 10,000
	assert.Equal(t, 1_000_000.0, s.Invest)
	assert.LessOrEqual(t, s.Invest, 10_000_000*0.10)
}

func TestCalc_FloorsQty(t *testing.T) {
	s := Calc(1_000_000, 0.01, 10_000, 9_300, 1.0)
	require.NotNil(t, s)
	// 10,000 / 700 = 14.28.. -> 14
	assert.Equal(t, int64(14), s.Qty)
}

func TestCalc_NoRisk(t *testing.T) {
	assert.Nil(t, Calc(1_000_000, 0.01, 10_000, 10_000, 1.0))
	assert.Nil(t, Calc(1_000_000, 0.01, 9_000, 10_000, 1.0))
}
