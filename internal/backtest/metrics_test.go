package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

func curve(initial float64, equities ...float64) []contracts.EquityPoint {
	out := make([]contracts.EquityPoint, len(equities))
	for i, e := range equities {
		out[i] = contracts.EquityPoint{
			Date:   contracts.Day(2024, 1, 1+i),
			Equity: e,
			Return: e/initial - 1,
		}
	}
	return out
}

func TestComputeMetricsBasic(t *testing.T) {
	trades := []contracts.Trade{
		{Side: contracts.SideBuy},
		{Side: contracts.SideSell, PnL: 500},
		{Side: contracts.SideSell, PnL: -200},
		{Side: contracts.SideSell, PnL: 300},
	}
	m := ComputeMetrics(100_000, curve(100_000, 101_000, 100_500, 100_600), trades)

	assert.InDelta(t, 0.006, m.TotalReturn, 1e-9)
	assert.InDelta(t, 100_600, m.FinalEquity, 1e-9)
	assert.Equal(t, 3, m.TradeCount)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn, "3 days annualize upward")
}

func TestComputeMetricsMaxDrawdown(t *testing.T) {
	m := ComputeMetrics(100, curve(100, 110, 99, 104), nil)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-9)
}

func TestComputeMetricsFlatCurve(t *testing.T) {
	m := ComputeMetrics(100, curve(100, 100, 100, 100), nil)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.WinRate)
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(100_000, nil, nil)
	assert.Zero(t, m.TotalReturn)
	assert.InDelta(t, 100_000, m.FinalEquity, 1e-9)
	assert.False(t, math.IsNaN(m.SharpeRatio))
}

func TestComputeMetricsSharpePositiveDrift(t *testing.T) {
	m := ComputeMetrics(100, curve(100, 101, 102.5, 103, 104.8), nil)
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Greater(t, m.Volatility, 0.0)
}

func TestComputeMetricsSortino(t *testing.T) {
	// Only down days feed the denominator, so a curve with a single dip
	// yields a higher Sortino than Sharpe.
	m := ComputeMetrics(100, curve(100, 102, 101, 104, 106), nil)
	assert.Greater(t, m.SortinoRatio, m.SharpeRatio)

	// Monotonic rise has no downside deviation at all.
	up := ComputeMetrics(100, curve(100, 101, 102, 103), nil)
	assert.Zero(t, up.SortinoRatio)
}
