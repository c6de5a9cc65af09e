package sandbox

import (
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Interpreter symbol table
// Strategy code sees exactly three stdlib packages (math, sort, time with
// the clock/timer functions stripped) and one virtual package,
// quant/contracts, carrying the role interfaces and market data types.
// Nothing else resolves inside the interpreter.
// =============================================================================

// clockSymbols would let interpreted code stall or observe wall time;
// the watchdog handles runaway loops, so these are simply absent.
var clockSymbols = []string{
	"Sleep", "After", "AfterFunc", "Tick", "NewTicker", "NewTimer", "Now", "Since", "Until",
}

// Symbols builds the full export set for one interpreter instance.
func Symbols() interp.Exports {
	exports := make(interp.Exports, 4)

	for _, pkg := range []string{"math/math", "sort/sort"} {
		exports[pkg] = stdlib.Symbols[pkg]
	}

	timeSyms := make(map[string]reflect.Value, len(stdlib.Symbols["time/time"]))
	for name, v := range stdlib.Symbols["time/time"] {
		timeSyms[name] = v
	}
	for _, name := range clockSymbols {
		delete(timeSyms, name)
	}
	exports["time/time"] = timeSyms

	contractSyms := map[string]reflect.Value{
		// Types
		"Params":           reflect.ValueOf((*contracts.Params)(nil)),
		"MarketData":       reflect.ValueOf((*contracts.MarketData)(nil)),
		"Bar":              reflect.ValueOf((*contracts.Bar)(nil)),
		"PositionSnapshot": reflect.ValueOf((*contracts.PositionSnapshot)(nil)),
		"ExitReason":       reflect.ValueOf((*contracts.ExitReason)(nil)),
		"ExitTrigger":      reflect.ValueOf((*contracts.ExitTrigger)(nil)),

		// Role interfaces and their binding wrappers
		"StockSelector":  reflect.ValueOf((*contracts.StockSelector)(nil)),
		"_StockSelector": reflect.ValueOf((*_contracts_StockSelector)(nil)),
		"EntryStrategy":  reflect.ValueOf((*contracts.EntryStrategy)(nil)),
		"_EntryStrategy": reflect.ValueOf((*_contracts_EntryStrategy)(nil)),
		"ExitStrategy":   reflect.ValueOf((*contracts.ExitStrategy)(nil)),
		"_ExitStrategy":  reflect.ValueOf((*_contracts_ExitStrategy)(nil)),

		// Exit priorities
		"PriorityReverseEntry": reflect.ValueOf(contracts.PriorityReverseEntry),
		"PriorityStopLoss":     reflect.ValueOf(contracts.PriorityStopLoss),
		"PriorityTrailingStop": reflect.ValueOf(contracts.PriorityTrailingStop),
		"PriorityTakeProfit":   reflect.ValueOf(contracts.PriorityTakeProfit),
		"PriorityMaxHolding":   reflect.ValueOf(contracts.PriorityMaxHolding),

		// Exit reasons and triggers
		"ExitReasonRiskControl":  reflect.ValueOf(contracts.ExitReasonRiskControl),
		"ExitReasonStrategy":     reflect.ValueOf(contracts.ExitReasonStrategy),
		"ExitReasonReverseEntry": reflect.ValueOf(contracts.ExitReasonReverseEntry),
		"TriggerStopLoss":        reflect.ValueOf(contracts.TriggerStopLoss),
		"TriggerTakeProfit":      reflect.ValueOf(contracts.TriggerTakeProfit),
		"TriggerTrailingStop":    reflect.ValueOf(contracts.TriggerTrailingStop),
		"TriggerMaxHolding":      reflect.ValueOf(contracts.TriggerMaxHolding),
		"TriggerSignalReverse":   reflect.ValueOf(contracts.TriggerSignalReverse),
	}
	exports["quant/contracts/contracts"] = contractSyms
	// The interpreter resolves an interface's binding wrapper through the
	// reflect package path of the host type, so the same map must also be
	// keyed by the real contracts path or returning a role interface from
	// interpreted code dereferences a missing entry.
	exports["github.com/sujun1972/stock-analysis-go/internal/contracts/contracts"] = contractSyms

	return exports
}

// The wrapper structs below let a type defined inside the interpreter
// satisfy a host interface. Yaegi fills the W-fields with the interpreted
// method implementations.

type _contracts_StockSelector struct {
	IValue  interface{}
	WName   func() string
	WSelect func(date time.Time, data *contracts.MarketData) ([]string, error)
}

func (w _contracts_StockSelector) Name() string { return w.WName() }
func (w _contracts_StockSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return w.WSelect(date, data)
}

type _contracts_EntryStrategy struct {
	IValue        interface{}
	WName         func() string
	WEntrySignals func(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error)
}

func (w _contracts_EntryStrategy) Name() string { return w.WName() }
func (w _contracts_EntryStrategy) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	return w.WEntrySignals(candidates, data, date)
}

type _contracts_ExitStrategy struct {
	IValue       interface{}
	WName        func() string
	WPriority    func() int
	WReason      func() contracts.ExitReason
	WTrigger     func() contracts.ExitTrigger
	WExitSignals func(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error)
}

func (w _contracts_ExitStrategy) Name() string                   { return w.WName() }
func (w _contracts_ExitStrategy) Priority() int                  { return w.WPriority() }
func (w _contracts_ExitStrategy) Reason() contracts.ExitReason   { return w.WReason() }
func (w _contracts_ExitStrategy) Trigger() contracts.ExitTrigger { return w.WTrigger() }
func (w _contracts_ExitStrategy) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	return w.WExitSignals(positions, data, date)
}
