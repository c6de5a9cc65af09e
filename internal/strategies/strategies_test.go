package strategies

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// series builds consecutive daily bars starting 2024-01-01.
func series(closes ...float64) []contracts.Bar {
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{
			Date:   contracts.Day(2024, 1, 1+i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1e6,
		}
	}
	return bars
}

func panel() *contracts.MarketData {
	return contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(10, 10.5, 11, 11.5, 12), // steady riser
		"600519": series(100, 100, 100, 100, 100), // flat
		"000001": series(20, 19.5, 19, 18.5, 18), // steady faller
	})
}

var day5 = contracts.Day(2024, 1, 5)

func TestMomentumSelector(t *testing.T) {
	sel := NewMomentumSelector(contracts.Params{"lookback": 2, "top_n": 1})
	picks, err := sel.Select(day5, panel())
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, picks)
}

func TestMomentumSelectorSkipsShortHistory(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(10, 11),
	})
	sel := NewMomentumSelector(contracts.Params{"lookback": 20, "top_n": 5})
	picks, err := sel.Select(contracts.Day(2024, 1, 2), data)
	require.NoError(t, err)
	assert.Empty(t, picks)
}

func TestReversalSelector(t *testing.T) {
	sel := NewReversalSelector(contracts.Params{"lookback": 2, "top_n": 1})
	picks, err := sel.Select(day5, panel())
	require.NoError(t, err)
	assert.Equal(t, []string{"000001"}, picks)
}

func TestSelectorDeterministicTieBreak(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600002": series(10, 10, 10),
		"600001": series(20, 20, 20),
		"600003": series(30, 30, 30),
	})
	sel := NewMomentumSelector(contracts.Params{"lookback": 2, "top_n": 2})
	for i := 0; i < 5; i++ {
		picks, err := sel.Select(contracts.Day(2024, 1, 3), data)
		require.NoError(t, err)
		assert.Equal(t, []string{"600001", "600002"}, picks)
	}
}

type stubScores map[string]float64

func (s stubScores) Score(code string, _ time.Time, _ *contracts.MarketData) (float64, bool) {
	v, ok := s[code]
	return v, ok
}

func TestMLSelectorWithProvider(t *testing.T) {
	scores := stubScores{"600000": 0.9, "600519": 0.4, "000001": -0.2}
	sel := NewMLSelector(contracts.Params{"top_n": 2, "min_score": 0.1}, scores)
	picks, err := sel.Select(day5, panel())
	require.NoError(t, err)
	assert.Equal(t, []string{"600000", "600519"}, picks)
}

func TestMLSelectorFallbackProvider(t *testing.T) {
	// Without a plugged model the linear factor combo still ranks, so a
	// panel with enough history yields picks instead of an error.
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(10, 10.2, 10.4, 10.6, 10.8, 11, 11.2, 11.4, 11.6, 11.8,
			12, 12.2, 12.4, 12.6, 12.8, 13, 13.2, 13.4, 13.6, 13.8, 14),
	})
	sel := NewMLSelector(contracts.Params{"top_n": 1}, nil)
	picks, err := sel.Select(contracts.Day(2024, 1, 21), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, picks)
}

func TestLinearFactorScoreLiquidityTilt(t *testing.T) {
	closes := []float64{10, 10.2, 10.4, 10.6, 10.8, 11, 11.2, 11.4, 11.6, 11.8,
		12, 12.2, 12.4, 12.6, 12.8, 13, 13.2, 13.4, 13.6, 13.8, 14}
	traded := series(closes...)
	halted := series(closes...)
	for i := range halted {
		halted[i].Volume = 0
	}
	day := contracts.Day(2024, 1, 21)

	with, ok := LinearFactorScore{}.Score("600000", day, contracts.NewMarketData(
		map[string][]contracts.Bar{"600000": traded}))
	require.True(t, ok)
	without, ok := LinearFactorScore{}.Score("600000", day, contracts.NewMarketData(
		map[string][]contracts.Bar{"600000": halted}))
	require.True(t, ok)

	// Identical price path, so the scores differ by exactly the tilt a
	// traded name earns over a zero-volume one.
	assert.InDelta(t, 0.01, with-without, 1e-12)
}

func TestExternalSelector(t *testing.T) {
	sel := NewExternalSelector(contracts.Params{"codes": []string{"600519", "999999", "600000"}})
	picks, err := sel.Select(day5, panel())
	require.NoError(t, err)
	// Sorted, and the unknown code is dropped.
	assert.Equal(t, []string{"600000", "600519"}, picks)
}

func TestImmediateEntry(t *testing.T) {
	e := NewImmediateEntry(nil)
	w, err := e.EntrySignals([]string{"600000", "000001", "999999"}, panel(), day5)
	require.NoError(t, err)
	require.Len(t, w, 2)
	assert.InDelta(t, 0.5, w["600000"], 1e-9)
	assert.InDelta(t, 0.5, w["000001"], 1e-9)
}

func TestMABreakoutEntry(t *testing.T) {
	// Below the 2-day MA, then a cross above it on the last day.
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(10, 9, 8, 12),
	})
	e := NewMABreakoutEntry(contracts.Params{"window": 2})

	w, err := e.EntrySignals([]string{"600000"}, data, contracts.Day(2024, 1, 4))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w["600000"], 1e-9)

	// No cross the day before.
	w, err = e.EntrySignals([]string{"600000"}, data.UpTo(contracts.Day(2024, 1, 3)), contracts.Day(2024, 1, 3))
	require.NoError(t, err)
	assert.Empty(t, w)
}

func TestRSIOversoldEntry(t *testing.T) {
	falling := contracts.NewMarketData(map[string][]contracts.Bar{
		"000001": series(20, 19, 18, 17, 16),
	})
	e := NewRSIOversoldEntry(contracts.Params{"period": 3, "threshold": 30})
	w, err := e.EntrySignals([]string{"000001"}, falling, day5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w["000001"], 1e-9)

	rising := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(10, 11, 12, 13, 14),
	})
	w, err = e.EntrySignals([]string{"600000"}, rising, day5)
	require.NoError(t, err)
	assert.Empty(t, w)
}

func pos(code string, entry, highest float64, days int) contracts.PositionSnapshot {
	return contracts.PositionSnapshot{
		Code:         code,
		EntryPrice:   entry,
		HighestPrice: highest,
		HoldingDays:  days,
		Shares:       100,
	}
}

func TestStopLossExit(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"000001": series(100, 93),
		"600000": series(100, 95),
	})
	e := NewStopLossExit(contracts.Params{"stop_pct": 0.07})
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("000001", 100, 100, 1), pos("600000", 100, 100, 1)},
		data, contracts.Day(2024, 1, 2))
	require.NoError(t, err)
	// 93 is exactly the 7% threshold and must trigger; 95 must not.
	assert.Equal(t, []string{"000001"}, hits)
}

func TestTakeProfitExit(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(100, 120),
		"600519": series(100, 119),
	})
	e := NewTakeProfitExit(contracts.Params{"take_pct": 0.20})
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("600000", 100, 120, 1), pos("600519", 100, 119, 1)},
		data, contracts.Day(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, hits)
}

func TestTrailingStopExit(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(100, 110, 99),
	})
	e := NewTrailingStopExit(contracts.Params{"trail_pct": 0.10})
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("600000", 100, 110, 2)},
		data, contracts.Day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, hits)

	assert.Equal(t, contracts.PriorityTrailingStop, e.Priority())
	assert.Equal(t, contracts.ExitReasonRiskControl, e.Reason())
}

func TestFixedPeriodExit(t *testing.T) {
	e := NewFixedPeriodExit(contracts.Params{"max_days": 5})
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("600000", 10, 12, 5), pos("600519", 10, 12, 4)},
		panel(), day5)
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, hits)
	assert.Equal(t, contracts.PriorityMaxHolding, e.Priority())
}

func TestTrendReverseExit(t *testing.T) {
	data := contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": series(12, 11, 8), // close 8 < MA3 (10.33)
		"600519": series(10, 11, 12),
	})
	e := NewTrendReverseExit(contracts.Params{"window": 3})
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("600000", 12, 12, 2), pos("600519", 10, 12, 2)},
		data, contracts.Day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"600000"}, hits)

	assert.Equal(t, contracts.PriorityReverseEntry, e.Priority())
	assert.Equal(t, contracts.ExitReasonReverseEntry, e.Reason())
	assert.Equal(t, contracts.TriggerSignalReverse, e.Trigger())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"external_list", "ml_score", "momentum", "reversal"},
		r.Names(contracts.RoleSelector))
	assert.Equal(t, []string{"immediate", "ma_breakout", "rsi_oversold"},
		r.Names(contracts.RoleEntry))
	assert.Equal(t, []string{"fixed_period", "holding_period", "stop_loss",
		"take_profit", "trailing_stop", "trend_reverse"},
		r.Names(contracts.RoleExit))

	sel, ok := r.Selector("momentum", contracts.Params{"top_n": 3})
	require.True(t, ok)
	assert.Equal(t, "momentum", sel.Name())

	_, ok = r.Entry("no_such", nil)
	assert.False(t, ok)

	assert.True(t, r.Has(contracts.RoleExit, "stop_loss"))
	assert.False(t, r.Has(contracts.RoleExit, "momentum"))
}

func TestDeprecatedHoldingPeriodIsNoop(t *testing.T) {
	r := NewRegistry()
	e, ok := r.Exit("holding_period", contracts.Params{"max_days": 1})
	require.True(t, ok)
	hits, err := e.ExitSignals(
		[]contracts.PositionSnapshot{pos("600000", 10, 12, 99)},
		panel(), day5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
