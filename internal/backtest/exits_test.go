package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// fakeExit fires on a fixed code set.
type fakeExit struct {
	name     string
	priority int
	reason   contracts.ExitReason
	trigger  contracts.ExitTrigger
	fires    []string
	err      error
}

func (f *fakeExit) Name() string                   { return f.name }
func (f *fakeExit) Priority() int                  { return f.priority }
func (f *fakeExit) Reason() contracts.ExitReason   { return f.reason }
func (f *fakeExit) Trigger() contracts.ExitTrigger { return f.trigger }
func (f *fakeExit) ExitSignals([]contracts.PositionSnapshot, *contracts.MarketData, time.Time) ([]string, error) {
	return f.fires, f.err
}

var noon = contracts.Day(2024, 1, 5)

func positions(codes ...string) []contracts.PositionSnapshot {
	out := make([]contracts.PositionSnapshot, len(codes))
	for i, c := range codes {
		out[i] = contracts.PositionSnapshot{Code: c, EntryPrice: 100, Shares: 100}
	}
	return out
}

func TestResolveHighestPriorityWins(t *testing.T) {
	r := NewExitResolver([]contracts.ExitStrategy{
		&fakeExit{name: "take_profit", priority: contracts.PriorityTakeProfit,
			reason: contracts.ExitReasonStrategy, trigger: contracts.TriggerTakeProfit, fires: []string{"600000"}},
		&fakeExit{name: "stop_loss", priority: contracts.PriorityStopLoss,
			reason: contracts.ExitReasonRiskControl, trigger: contracts.TriggerStopLoss, fires: []string{"600000"}},
	})

	decisions, faults := r.Resolve(positions("600000"), nil, noon)
	require.Empty(t, faults)
	require.Len(t, decisions, 1, "exactly one sell per position per day")
	assert.Equal(t, "stop_loss", decisions[0].Strategy)
	assert.Equal(t, contracts.TriggerStopLoss, decisions[0].Trigger)
	assert.Equal(t, contracts.ExitReasonRiskControl, decisions[0].Reason)
}

func TestResolveOrderIndependent(t *testing.T) {
	lo := &fakeExit{name: "take_profit", priority: contracts.PriorityTakeProfit,
		trigger: contracts.TriggerTakeProfit, fires: []string{"600000"}}
	hi := &fakeExit{name: "trend_reverse", priority: contracts.PriorityReverseEntry,
		trigger: contracts.TriggerSignalReverse, fires: []string{"600000"}}

	for _, exits := range [][]contracts.ExitStrategy{{lo, hi}, {hi, lo}} {
		decisions, _ := NewExitResolver(exits).Resolve(positions("600000"), nil, noon)
		require.Len(t, decisions, 1)
		assert.Equal(t, "trend_reverse", decisions[0].Strategy)
	}
}

func TestResolveEqualPriorityTieBreak(t *testing.T) {
	a := &fakeExit{name: "alpha", priority: 5, fires: []string{"600000"}}
	b := &fakeExit{name: "beta", priority: 5, fires: []string{"600000"}}

	for _, exits := range [][]contracts.ExitStrategy{{a, b}, {b, a}} {
		decisions, _ := NewExitResolver(exits).Resolve(positions("600000"), nil, noon)
		require.Len(t, decisions, 1)
		assert.Equal(t, "alpha", decisions[0].Strategy)
	}
}

func TestResolveIgnoresUnheldCodes(t *testing.T) {
	r := NewExitResolver([]contracts.ExitStrategy{
		&fakeExit{name: "stop_loss", priority: 10, fires: []string{"600000", "999999"}},
	})
	decisions, _ := r.Resolve(positions("600000"), nil, noon)
	require.Len(t, decisions, 1)
	assert.Equal(t, "600000", decisions[0].Code)
}

func TestResolveFailingStrategyIsIsolated(t *testing.T) {
	r := NewExitResolver([]contracts.ExitStrategy{
		&fakeExit{name: "broken", priority: 11, err: errors.New("bad data")},
		&fakeExit{name: "stop_loss", priority: 10,
			trigger: contracts.TriggerStopLoss, fires: []string{"600000"}},
	})

	decisions, faults := r.Resolve(positions("600000"), nil, noon)
	require.Len(t, faults, 1)
	assert.Equal(t, "broken", faults[0].Strategy)
	assert.Equal(t, "exit", faults[0].Stage)

	require.Len(t, decisions, 1, "the healthy strategy still resolves")
	assert.Equal(t, "stop_loss", decisions[0].Strategy)
}

func TestResolveNoSignalKeepsPositionOpen(t *testing.T) {
	r := NewExitResolver([]contracts.ExitStrategy{
		&fakeExit{name: "stop_loss", priority: 10},
	})
	decisions, faults := r.Resolve(positions("600000", "600519"), nil, noon)
	assert.Empty(t, decisions)
	assert.Empty(t, faults)
}

func TestResolveMultiplePositions(t *testing.T) {
	r := NewExitResolver([]contracts.ExitStrategy{
		&fakeExit{name: "stop_loss", priority: 10, fires: []string{"600519"}},
		&fakeExit{name: "take_profit", priority: 8, fires: []string{"600000"}},
	})
	decisions, _ := r.Resolve(positions("600000", "600519"), nil, noon)
	require.Len(t, decisions, 2)
	// Sorted by code.
	assert.Equal(t, "600000", decisions[0].Code)
	assert.Equal(t, "take_profit", decisions[0].Strategy)
	assert.Equal(t, "600519", decisions[1].Code)
	assert.Equal(t, "stop_loss", decisions[1].Strategy)
}
