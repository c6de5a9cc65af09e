package contracts

import "time"

// =============================================================================
// Trade Ledger Types
// Trades are append-only; every sell is causally tagged with the exit
// strategy that produced it. Rebalancing never emits a sell.
// =============================================================================

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// EntryReason tags buy trades. Buys only ever happen on an entry signal.
type EntryReason string

const EntryReasonSignal EntryReason = "signal"

// ExitReason is the coarse cause of a sell.
type ExitReason string

const (
	ExitReasonRiskControl  ExitReason = "risk_control"
	ExitReasonStrategy     ExitReason = "strategy"
	ExitReasonReverseEntry ExitReason = "reverse_entry"
)

// ExitTrigger is the specific rule that fired.
type ExitTrigger string

const (
	TriggerStopLoss      ExitTrigger = "stop_loss"
	TriggerTakeProfit    ExitTrigger = "take_profit"
	TriggerTrailingStop  ExitTrigger = "trailing_stop"
	TriggerMaxHolding    ExitTrigger = "max_holding_period"
	TriggerSignalReverse ExitTrigger = "signal_reverse"
)

// Trade is one immutable ledger entry.
type Trade struct {
	Side       TradeSide `json:"side"`
	Code       string    `json:"code"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Shares     int64     `json:"shares"`
	Amount     float64   `json:"amount"` // price × shares, before frictions
	Commission float64   `json:"commission"`
	StampDuty  float64   `json:"stamp_duty,omitempty"` // sell side only

	// Buy tagging
	EntryReason EntryReason `json:"entry_reason,omitempty"`

	// Sell tagging
	ExitReason   ExitReason  `json:"exit_reason,omitempty"`
	ExitTrigger  ExitTrigger `json:"exit_trigger,omitempty"`
	ExitStrategy string      `json:"exit_strategy,omitempty"`
	PnL          float64     `json:"pnl,omitempty"`
	ReturnPct    float64     `json:"return_pct,omitempty"`
}

// PositionSnapshot is the read-only view of a position handed to exit
// strategies. The Portfolio owns the mutable position; strategies only
// ever see copies.
type PositionSnapshot struct {
	Code         string    `json:"code"`
	EntryPrice   float64   `json:"entry_price"`
	EntryDate    time.Time `json:"entry_date"`
	Shares       int64     `json:"shares"`
	HighestPrice float64   `json:"highest_price"` // since entry, updated daily
	HoldingDays  int       `json:"holding_days"`  // trading days since entry
}

// EquityPoint is one day of the equity curve: cash plus mark-to-market
// position value.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
	Return float64   `json:"return"` // cumulative, vs initial capital
}

// Fault records an isolated per-symbol strategy failure that did not
// abort the run.
type Fault struct {
	Date     time.Time `json:"date"`
	Stage    string    `json:"stage"` // "entry" or "exit"
	Strategy string    `json:"strategy"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message"`
}
