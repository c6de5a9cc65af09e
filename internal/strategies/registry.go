package strategies

import (
	"sort"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Built-in registry
// Maps strategy slugs to native factories. The composer consults this
// first; anything not found here goes through the sandbox instead.
// =============================================================================

type SelectorFactory func(contracts.Params) contracts.StockSelector
type EntryFactory func(contracts.Params) contracts.EntryStrategy
type ExitFactory func(contracts.Params) contracts.ExitStrategy

type Registry struct {
	selectors map[string]SelectorFactory
	entries   map[string]EntryFactory
	exits     map[string]ExitFactory
	scores    contracts.ScoreProvider
}

// NewRegistry builds a registry with every built-in registered.
func NewRegistry() *Registry {
	r := &Registry{
		selectors: make(map[string]SelectorFactory),
		entries:   make(map[string]EntryFactory),
		exits:     make(map[string]ExitFactory),
	}

	r.selectors["momentum"] = func(p contracts.Params) contracts.StockSelector { return NewMomentumSelector(p) }
	r.selectors["reversal"] = func(p contracts.Params) contracts.StockSelector { return NewReversalSelector(p) }
	r.selectors["ml_score"] = func(p contracts.Params) contracts.StockSelector { return NewMLSelector(p, r.scores) }
	r.selectors["external_list"] = func(p contracts.Params) contracts.StockSelector { return NewExternalSelector(p) }

	r.entries["immediate"] = func(p contracts.Params) contracts.EntryStrategy { return NewImmediateEntry(p) }
	r.entries["ma_breakout"] = func(p contracts.Params) contracts.EntryStrategy { return NewMABreakoutEntry(p) }
	r.entries["rsi_oversold"] = func(p contracts.Params) contracts.EntryStrategy { return NewRSIOversoldEntry(p) }

	r.exits["stop_loss"] = func(p contracts.Params) contracts.ExitStrategy { return NewStopLossExit(p) }
	r.exits["take_profit"] = func(p contracts.Params) contracts.ExitStrategy { return NewTakeProfitExit(p) }
	r.exits["trailing_stop"] = func(p contracts.Params) contracts.ExitStrategy { return NewTrailingStopExit(p) }
	r.exits["fixed_period"] = func(p contracts.Params) contracts.ExitStrategy { return NewFixedPeriodExit(p) }
	r.exits["trend_reverse"] = func(p contracts.Params) contracts.ExitStrategy { return NewTrendReverseExit(p) }

	// Deprecated: holding_period predates fixed_period and is kept so old
	// saved combinations still load. It never fires.
	r.exits["holding_period"] = func(p contracts.Params) contracts.ExitStrategy { return &noopExit{} }

	return r
}

// WithScoreProvider plugs a trained model into the ml_score selector.
func (r *Registry) WithScoreProvider(p contracts.ScoreProvider) *Registry {
	r.scores = p
	return r
}

func (r *Registry) Selector(name string, p contracts.Params) (contracts.StockSelector, bool) {
	f, ok := r.selectors[name]
	if !ok {
		return nil, false
	}
	return f(p), true
}

func (r *Registry) Entry(name string, p contracts.Params) (contracts.EntryStrategy, bool) {
	f, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return f(p), true
}

func (r *Registry) Exit(name string, p contracts.Params) (contracts.ExitStrategy, bool) {
	f, ok := r.exits[name]
	if !ok {
		return nil, false
	}
	return f(p), true
}

// Has reports whether a built-in exists for the role and slug.
func (r *Registry) Has(role contracts.Role, name string) bool {
	switch role {
	case contracts.RoleSelector:
		_, ok := r.selectors[name]
		return ok
	case contracts.RoleEntry:
		_, ok := r.entries[name]
		return ok
	case contracts.RoleExit:
		_, ok := r.exits[name]
		return ok
	}
	return false
}

// Names lists the registered slugs for one role, sorted.
func (r *Registry) Names(role contracts.Role) []string {
	var m map[string]struct{}
	switch role {
	case contracts.RoleSelector:
		m = keys(r.selectors)
	case contracts.RoleEntry:
		m = keys(r.entries)
	case contracts.RoleExit:
		m = keys(r.exits)
	default:
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// noopExit backs the deprecated holding_period slug.
type noopExit struct{}

func (e *noopExit) Name() string                   { return "holding_period" }
func (e *noopExit) Priority() int                  { return contracts.PriorityMaxHolding }
func (e *noopExit) Reason() contracts.ExitReason   { return contracts.ExitReasonStrategy }
func (e *noopExit) Trigger() contracts.ExitTrigger { return contracts.TriggerMaxHolding }
func (e *noopExit) ExitSignals([]contracts.PositionSnapshot, *contracts.MarketData, time.Time) ([]string, error) {
	return nil, nil
}
