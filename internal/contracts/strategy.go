package contracts

import (
	"time"
)

// =============================================================================
// Three-Layer Strategy Contracts
// Selector / Entry / Exit. Built-ins and sandboxed strategies implement the
// same interfaces; the engine never knows which kind it is driving.
// =============================================================================

// StockSelector picks the candidate universe on rebalance dates.
// Select must be a pure function of the date and the panel it is given;
// it must not retain state between calls beyond its own params.
type StockSelector interface {
	Name() string
	Select(date time.Time, data *MarketData) ([]string, error)
}

// EntryStrategy decides buy weights among the current candidate pool.
// Called every simulated day. Weights are advisory sizing, not fills.
type EntryStrategy interface {
	Name() string
	EntrySignals(candidates []string, data *MarketData, date time.Time) (map[string]float64, error)
}

// ExitStrategy decides which held positions to sell on a given day.
// Multiple exit strategies may be active; same-day conflicts are resolved
// by Priority (highest wins), never by iteration order.
type ExitStrategy interface {
	Name() string
	Priority() int
	Reason() ExitReason
	Trigger() ExitTrigger
	ExitSignals(positions []PositionSnapshot, data *MarketData, date time.Time) ([]string, error)
}

// Fixed exit priorities. Highest wins on a same-day conflict.
const (
	PriorityReverseEntry = 11
	PriorityStopLoss     = 10
	PriorityTrailingStop = 9
	PriorityTakeProfit   = 8
	PriorityMaxHolding   = 3
)

// Role is the declared capability of a strategy record.
type Role string

const (
	RoleSelector Role = "selector"
	RoleEntry    Role = "entry"
	RoleExit     Role = "exit"
)

// RebalanceFreq is the cadence at which the selector is re-run.
type RebalanceFreq string

const (
	RebalanceDaily   RebalanceFreq = "D"
	RebalanceWeekly  RebalanceFreq = "W"
	RebalanceMonthly RebalanceFreq = "M"
)

// Valid reports whether f is one of the supported cadences.
func (f RebalanceFreq) Valid() bool {
	switch f {
	case RebalanceDaily, RebalanceWeekly, RebalanceMonthly:
		return true
	}
	return false
}

// =============================================================================
// Strategy Parameters
// =============================================================================

// Params is the name→value map a strategy is instantiated with.
// Values are JSON-scalar or []string (for externally supplied code lists).
type Params map[string]any

// Float returns the parameter as float64, or def when absent or non-numeric.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// Int returns the parameter as int, or def when absent or non-numeric.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Strings returns the parameter as a string slice. JSON decoding yields
// []any, so both representations are accepted.
func (p Params) Strings(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy so callers can hand params to a strategy
// without sharing the backing map.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamSpec describes one declared parameter of a strategy.
type ParamSpec struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"` // "int", "float", "strings"
	Default any     `json:"default"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Desc    string  `json:"desc,omitempty"`
}

// ScoreProvider supplies per-symbol model scores for ranking selectors.
// The default implementation is a linear factor combo; a trained model
// can be plugged in from outside the engine.
type ScoreProvider interface {
	Score(code string, date time.Time, data *MarketData) (float64, bool)
}
