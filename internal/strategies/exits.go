package strategies

import (
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Built-in exit strategies
// Each exit carries a fixed priority, reason and trigger; same-day
// conflicts are resolved upstream by priority alone.
// =============================================================================

// -----------------------------------------------------------------------------
// Stop loss
// -----------------------------------------------------------------------------

// StopLossExit sells when the close falls a fixed fraction below the
// entry price.
type StopLossExit struct {
	pct float64
}

func NewStopLossExit(p contracts.Params) *StopLossExit {
	return &StopLossExit{pct: p.Float("stop_pct", 0.07)}
}

func (e *StopLossExit) Name() string                   { return "stop_loss" }
func (e *StopLossExit) Priority() int                  { return contracts.PriorityStopLoss }
func (e *StopLossExit) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (e *StopLossExit) Trigger() contracts.ExitTrigger { return contracts.TriggerStopLoss }

func (e *StopLossExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok {
			continue
		}
		if px <= pos.EntryPrice*(1-e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Take profit
// -----------------------------------------------------------------------------

// TakeProfitExit sells when the close rises a fixed fraction above the
// entry price.
type TakeProfitExit struct {
	pct float64
}

func NewTakeProfitExit(p contracts.Params) *TakeProfitExit {
	return &TakeProfitExit{pct: p.Float("take_pct", 0.20)}
}

func (e *TakeProfitExit) Name() string                   { return "take_profit" }
func (e *TakeProfitExit) Priority() int                  { return contracts.PriorityTakeProfit }
func (e *TakeProfitExit) Reason() contracts.ExitReason   { return contracts.ExitReasonStrategy }
func (e *TakeProfitExit) Trigger() contracts.ExitTrigger { return contracts.TriggerTakeProfit }

func (e *TakeProfitExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok {
			continue
		}
		if px >= pos.EntryPrice*(1+e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Trailing stop
// -----------------------------------------------------------------------------

// TrailingStopExit sells when the close falls a fixed fraction below the
// highest close seen since entry.
type TrailingStopExit struct {
	pct float64
}

func NewTrailingStopExit(p contracts.Params) *TrailingStopExit {
	return &TrailingStopExit{pct: p.Float("trail_pct", 0.10)}
}

func (e *TrailingStopExit) Name() string                   { return "trailing_stop" }
func (e *TrailingStopExit) Priority() int                  { return contracts.PriorityTrailingStop }
func (e *TrailingStopExit) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (e *TrailingStopExit) Trigger() contracts.ExitTrigger { return contracts.TriggerTrailingStop }

func (e *TrailingStopExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok || pos.HighestPrice == 0 {
			continue
		}
		if px <= pos.HighestPrice*(1-e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Fixed holding period
// -----------------------------------------------------------------------------

// FixedPeriodExit sells after a maximum number of trading days held.
// Lowest priority: any risk or signal exit on the same day wins.
type FixedPeriodExit struct {
	maxDays int
}

func NewFixedPeriodExit(p contracts.Params) *FixedPeriodExit {
	return &FixedPeriodExit{maxDays: p.Int("max_days", 30)}
}

func (e *FixedPeriodExit) Name() string                   { return "fixed_period" }
func (e *FixedPeriodExit) Priority() int                  { return contracts.PriorityMaxHolding }
func (e *FixedPeriodExit) Reason() contracts.ExitReason   { return contracts.ExitReasonStrategy }
func (e *FixedPeriodExit) Trigger() contracts.ExitTrigger { return contracts.TriggerMaxHolding }

func (e *FixedPeriodExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		if pos.HoldingDays >= e.maxDays {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Trend reverse
// -----------------------------------------------------------------------------

// TrendReverseExit sells when the close breaks below the window-day
// moving average. Highest priority: a reversed signal overrides every
// other exit on the same day.
type TrendReverseExit struct {
	window int
}

func NewTrendReverseExit(p contracts.Params) *TrendReverseExit {
	return &TrendReverseExit{window: p.Int("window", 20)}
}

func (e *TrendReverseExit) Name() string                   { return "trend_reverse" }
func (e *TrendReverseExit) Priority() int                  { return contracts.PriorityReverseEntry }
func (e *TrendReverseExit) Reason() contracts.ExitReason   { return contracts.ExitReasonReverseEntry }
func (e *TrendReverseExit) Trigger() contracts.ExitTrigger { return contracts.TriggerSignalReverse }

func (e *TrendReverseExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok {
			continue
		}
		ma, ok := movingAverage(data, pos.Code, date, e.window)
		if !ok {
			continue
		}
		if px < ma {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}
