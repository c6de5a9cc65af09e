package strategy

import (
	"context"
	"errors"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// Builtins returns the seed records for the built-in strategy catalog.
// Each record carries real runnable sandbox source mirroring the native
// implementation, so built-ins stay usable even when resolved through
// the record store instead of the native registry. Records are returned
// pending; the seeder validates them before enabling.
func Builtins() []*Strategy {
	return []*Strategy{
		{
			Name:        "momentum",
			DisplayName: "Momentum Top-N",
			Description: "Ranks the universe by trailing return and keeps the strongest names.",
			Code:        momentumSource,
			ClassName:   "Momentum",
			SourceType:  SourceBuiltin,
			Category:    "momentum",
			Role:        contracts.RoleSelector,
			DefaultParams: contracts.Params{
				"lookback": 20,
				"top_n":    10,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "lookback", Type: "int", Default: 20, Min: 2, Max: 250, Desc: "trailing return window in trading days"},
				{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 100, Desc: "number of names to keep"},
			},
		},
		{
			Name:        "reversal",
			DisplayName: "Short-Term Reversal",
			Description: "Buys the biggest short-window losers, betting on a bounce.",
			Code:        reversalSource,
			ClassName:   "Reversal",
			SourceType:  SourceBuiltin,
			Category:    "reversal",
			Role:        contracts.RoleSelector,
			DefaultParams: contracts.Params{
				"lookback": 5,
				"top_n":    10,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "lookback", Type: "int", Default: 5, Min: 2, Max: 60, Desc: "drawdown window in trading days"},
				{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 100, Desc: "number of names to keep"},
			},
		},
		{
			Name:        "ml_score",
			DisplayName: "Factor Score Top-N",
			Description: "Ranks by a linear blend of momentum and inverse volatility.",
			Code:        mlScoreSource,
			ClassName:   "FactorScore",
			SourceType:  SourceBuiltin,
			Category:    "factor",
			Role:        contracts.RoleSelector,
			DefaultParams: contracts.Params{
				"top_n":     10,
				"min_score": 0,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 100, Desc: "number of names to keep"},
				{Name: "min_score", Type: "float", Default: 0, Desc: "drop names scoring below this"},
			},
		},
		{
			Name:        "external_list",
			DisplayName: "External Code List",
			Description: "Selects a fixed, externally supplied list of codes.",
			Code:        externalListSource,
			ClassName:   "ExternalList",
			SourceType:  SourceBuiltin,
			Category:    "external",
			Role:        contracts.RoleSelector,
			DefaultParams: contracts.Params{
				"codes": []string{},
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "codes", Type: "strings", Default: []string{}, Desc: "stock codes to hold constant"},
			},
		},
		{
			Name:        "immediate",
			DisplayName: "Immediate Entry",
			Description: "Buys every tradable candidate at equal weight on the next open.",
			Code:        immediateSource,
			ClassName:   "Immediate",
			SourceType:  SourceBuiltin,
			Category:    "timing",
			Role:        contracts.RoleEntry,
		},
		{
			Name:        "ma_breakout",
			DisplayName: "MA Breakout Entry",
			Description: "Buys when the close crosses above its moving average.",
			Code:        maBreakoutSource,
			ClassName:   "MABreakout",
			SourceType:  SourceBuiltin,
			Category:    "timing",
			Role:        contracts.RoleEntry,
			DefaultParams: contracts.Params{
				"window": 20,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "window", Type: "int", Default: 20, Min: 2, Max: 250, Desc: "moving average window"},
			},
		},
		{
			Name:        "rsi_oversold",
			DisplayName: "RSI Oversold Entry",
			Description: "Buys candidates whose RSI has dropped below a threshold.",
			Code:        rsiOversoldSource,
			ClassName:   "RSIOversold",
			SourceType:  SourceBuiltin,
			Category:    "timing",
			Role:        contracts.RoleEntry,
			DefaultParams: contracts.Params{
				"period":    14,
				"threshold": 30,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "period", Type: "int", Default: 14, Min: 2, Max: 60, Desc: "RSI lookback period"},
				{Name: "threshold", Type: "float", Default: 30, Min: 1, Max: 50, Desc: "buy below this RSI"},
			},
		},
		{
			Name:        "stop_loss",
			DisplayName: "Stop Loss",
			Description: "Sells when the loss from entry exceeds the stop percentage.",
			Code:        stopLossSource,
			ClassName:   "StopLoss",
			SourceType:  SourceBuiltin,
			Category:    "risk",
			Role:        contracts.RoleExit,
			DefaultParams: contracts.Params{
				"stop_pct": 0.07,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "stop_pct", Type: "float", Default: 0.07, Min: 0.01, Max: 0.5, Desc: "maximum tolerated loss from entry"},
			},
		},
		{
			Name:        "take_profit",
			DisplayName: "Take Profit",
			Description: "Sells when the gain from entry exceeds the target percentage.",
			Code:        takeProfitSource,
			ClassName:   "TakeProfit",
			SourceType:  SourceBuiltin,
			Category:    "risk",
			Role:        contracts.RoleExit,
			DefaultParams: contracts.Params{
				"take_pct": 0.20,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "take_pct", Type: "float", Default: 0.20, Min: 0.01, Max: 2, Desc: "profit target from entry"},
			},
		},
		{
			Name:        "trailing_stop",
			DisplayName: "Trailing Stop",
			Description: "Sells when price falls a set percentage from its post-entry high.",
			Code:        trailingStopSource,
			ClassName:   "TrailingStop",
			SourceType:  SourceBuiltin,
			Category:    "risk",
			Role:        contracts.RoleExit,
			DefaultParams: contracts.Params{
				"trail_pct": 0.10,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "trail_pct", Type: "float", Default: 0.10, Min: 0.01, Max: 0.5, Desc: "tolerated drawdown from the running high"},
			},
		},
		{
			Name:        "fixed_period",
			DisplayName: "Fixed Holding Period",
			Description: "Sells after a maximum number of trading days regardless of price.",
			Code:        fixedPeriodSource,
			ClassName:   "FixedPeriod",
			SourceType:  SourceBuiltin,
			Category:    "time",
			Role:        contracts.RoleExit,
			DefaultParams: contracts.Params{
				"max_days": 30,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "max_days", Type: "int", Default: 30, Min: 1, Max: 250, Desc: "maximum holding period in trading days"},
			},
		},
		{
			Name:        "trend_reverse",
			DisplayName: "Trend Reverse",
			Description: "Sells when the close drops back below its moving average.",
			Code:        trendReverseSource,
			ClassName:   "TrendReverse",
			SourceType:  SourceBuiltin,
			Category:    "signal",
			Role:        contracts.RoleExit,
			DefaultParams: contracts.Params{
				"window": 20,
			},
			ParamSchema: []contracts.ParamSpec{
				{Name: "window", Type: "int", Default: 20, Min: 2, Max: 250, Desc: "moving average window"},
			},
		},
	}
}

// SeedBuiltins inserts any missing builtin records. Existing records are
// left untouched so operator edits survive restarts. The validate
// callback runs static validation and returns the verdict to store.
func SeedBuiltins(ctx context.Context, store Store, validate func(*Strategy) (ValidationStatus, []string, RiskLevel)) (int, error) {
	created := 0
	for _, rec := range Builtins() {
		if _, err := store.GetByName(ctx, rec.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return created, err
		}

		if err := store.Create(ctx, rec); err != nil {
			return created, err
		}
		if validate != nil {
			status, verrs, risk := validate(rec)
			if err := store.UpdateValidation(ctx, rec.ID, status, verrs, risk); err != nil {
				return created, err
			}
		}
		created++
	}
	return created, nil
}

const momentumSource = `package strategy

import (
	"sort"
	"time"

	"quant/contracts"
)

type Momentum struct {
	lookback int
	topN     int
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	type scored struct {
		code  string
		score float64
	}
	var ranked []scored
	for _, code := range data.Symbols() {
		bars := data.History(code, date, s.lookback+1)
		if len(bars) < s.lookback+1 {
			continue
		}
		first := bars[0].Close
		if first <= 0 {
			continue
		}
		ranked = append(ranked, scored{code: code, score: bars[len(bars)-1].Close/first - 1})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].code < ranked[j].code
	})
	n := s.topN
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.code)
	}
	return out, nil
}

func New(params contracts.Params) contracts.StockSelector {
	return &Momentum{
		lookback: params.Int("lookback", 20),
		topN:     params.Int("top_n", 10),
	}
}
`

const reversalSource = `package strategy

import (
	"sort"
	"time"

	"quant/contracts"
)

type Reversal struct {
	lookback int
	topN     int
}

func (s *Reversal) Name() string { return "reversal" }

func (s *Reversal) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	type scored struct {
		code  string
		score float64
	}
	var ranked []scored
	for _, code := range data.Symbols() {
		bars := data.History(code, date, s.lookback+1)
		if len(bars) < s.lookback+1 {
			continue
		}
		first := bars[0].Close
		if first <= 0 {
			continue
		}
		ranked = append(ranked, scored{code: code, score: bars[len(bars)-1].Close/first - 1})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].code < ranked[j].code
	})
	n := s.topN
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.code)
	}
	return out, nil
}

func New(params contracts.Params) contracts.StockSelector {
	return &Reversal{
		lookback: params.Int("lookback", 5),
		topN:     params.Int("top_n", 10),
	}
}
`

const mlScoreSource = `package strategy

import (
	"math"
	"sort"
	"time"

	"quant/contracts"
)

type FactorScore struct {
	topN     int
	minScore float64
}

func (s *FactorScore) Name() string { return "ml_score" }

func (s *FactorScore) score(code string, date time.Time, data *contracts.MarketData) (float64, bool) {
	bars := data.History(code, date, 21)
	if len(bars) < 21 {
		return 0, false
	}
	first := bars[0].Close
	if first <= 0 {
		return 0, false
	}
	momentum := bars[len(bars)-1].Close/first - 1

	var sum, sumSq float64
	n := 0
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 {
			continue
		}
		r := bars[i].Close/bars[i-1].Close - 1
		sum += r
		sumSq += r * r
		n++
	}
	if n == 0 {
		return 0, false
	}
	mean := sum / float64(n)
	vol := math.Sqrt(sumSq/float64(n) - mean*mean)
	return momentum - vol, true
}

func (s *FactorScore) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	type scored struct {
		code  string
		score float64
	}
	var ranked []scored
	for _, code := range data.Symbols() {
		v, ok := s.score(code, date, data)
		if !ok || v < s.minScore {
			continue
		}
		ranked = append(ranked, scored{code: code, score: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].code < ranked[j].code
	})
	n := s.topN
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.code)
	}
	return out, nil
}

func New(params contracts.Params) contracts.StockSelector {
	return &FactorScore{
		topN:     params.Int("top_n", 10),
		minScore: params.Float("min_score", 0),
	}
}
`

const externalListSource = `package strategy

import (
	"sort"
	"time"

	"quant/contracts"
)

type ExternalList struct {
	codes []string
}

func (s *ExternalList) Name() string { return "external_list" }

func (s *ExternalList) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	out := make([]string, 0, len(s.codes))
	for _, code := range s.codes {
		if _, ok := data.Bar(code, date); ok {
			out = append(out, code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.StockSelector {
	codes := params.Strings("codes")
	sort.Strings(codes)
	return &ExternalList{codes: codes}
}
`

const immediateSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type Immediate struct{}

func (e *Immediate) Name() string { return "immediate" }

func (e *Immediate) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	tradable := make([]string, 0, len(candidates))
	for _, code := range candidates {
		if _, ok := data.Bar(code, date); ok {
			tradable = append(tradable, code)
		}
	}
	if len(tradable) == 0 {
		return map[string]float64{}, nil
	}
	w := 1.0 / float64(len(tradable))
	out := make(map[string]float64, len(tradable))
	for _, code := range tradable {
		out[code] = w
	}
	return out, nil
}

func New(params contracts.Params) contracts.EntryStrategy { return &Immediate{} }
`

const maBreakoutSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type MABreakout struct {
	window int
}

func (e *MABreakout) Name() string { return "ma_breakout" }

func (e *MABreakout) crossed(code string, data *contracts.MarketData, date time.Time) bool {
	bars := data.History(code, date, e.window+1)
	if len(bars) < e.window+1 {
		return false
	}
	var cur, prev float64
	for _, b := range bars[1:] {
		cur += b.Close
	}
	for _, b := range bars[:len(bars)-1] {
		prev += b.Close
	}
	cur /= float64(e.window)
	prev /= float64(e.window)
	today := bars[len(bars)-1].Close
	yesterday := bars[len(bars)-2].Close
	return yesterday <= prev && today > cur
}

func (e *MABreakout) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	var picked []string
	for _, code := range candidates {
		if e.crossed(code, data, date) {
			picked = append(picked, code)
		}
	}
	out := make(map[string]float64, len(picked))
	if len(picked) == 0 {
		return out, nil
	}
	w := 1.0 / float64(len(picked))
	for _, code := range picked {
		out[code] = w
	}
	return out, nil
}

func New(params contracts.Params) contracts.EntryStrategy {
	return &MABreakout{window: params.Int("window", 20)}
}
`

const rsiOversoldSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type RSIOversold struct {
	period    int
	threshold float64
}

func (e *RSIOversold) Name() string { return "rsi_oversold" }

func (e *RSIOversold) rsi(code string, data *contracts.MarketData, date time.Time) (float64, bool) {
	bars := data.History(code, date, e.period+1)
	if len(bars) < e.period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

func (e *RSIOversold) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	var picked []string
	for _, code := range candidates {
		if v, ok := e.rsi(code, data, date); ok && v < e.threshold {
			picked = append(picked, code)
		}
	}
	out := make(map[string]float64, len(picked))
	if len(picked) == 0 {
		return out, nil
	}
	w := 1.0 / float64(len(picked))
	for _, code := range picked {
		out[code] = w
	}
	return out, nil
}

func New(params contracts.Params) contracts.EntryStrategy {
	return &RSIOversold{
		period:    params.Int("period", 14),
		threshold: params.Float("threshold", 30),
	}
}
`

const stopLossSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type StopLoss struct {
	pct float64
}

func (e *StopLoss) Name() string                   { return "stop_loss" }
func (e *StopLoss) Priority() int                  { return contracts.PriorityStopLoss }
func (e *StopLoss) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (e *StopLoss) Trigger() contracts.ExitTrigger { return contracts.TriggerStopLoss }

func (e *StopLoss) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		price, ok := data.Close(pos.Code, date)
		if !ok || pos.EntryPrice <= 0 {
			continue
		}
		if price <= pos.EntryPrice*(1-e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.ExitStrategy {
	return &StopLoss{pct: params.Float("stop_pct", 0.07)}
}
`

const takeProfitSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type TakeProfit struct {
	pct float64
}

func (e *TakeProfit) Name() string                   { return "take_profit" }
func (e *TakeProfit) Priority() int                  { return contracts.PriorityTakeProfit }
func (e *TakeProfit) Reason() contracts.ExitReason   { return contracts.ExitReasonStrategy }
func (e *TakeProfit) Trigger() contracts.ExitTrigger { return contracts.TriggerTakeProfit }

func (e *TakeProfit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		price, ok := data.Close(pos.Code, date)
		if !ok || pos.EntryPrice <= 0 {
			continue
		}
		if price >= pos.EntryPrice*(1+e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.ExitStrategy {
	return &TakeProfit{pct: params.Float("take_pct", 0.20)}
}
`

const trailingStopSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type TrailingStop struct {
	pct float64
}

func (e *TrailingStop) Name() string                   { return "trailing_stop" }
func (e *TrailingStop) Priority() int                  { return contracts.PriorityTrailingStop }
func (e *TrailingStop) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (e *TrailingStop) Trigger() contracts.ExitTrigger { return contracts.TriggerTrailingStop }

func (e *TrailingStop) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		price, ok := data.Close(pos.Code, date)
		if !ok || pos.HighestPrice <= 0 {
			continue
		}
		if price <= pos.HighestPrice*(1-e.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.ExitStrategy {
	return &TrailingStop{pct: params.Float("trail_pct", 0.10)}
}
`

const fixedPeriodSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type FixedPeriod struct {
	maxDays int
}

func (e *FixedPeriod) Name() string                   { return "fixed_period" }
func (e *FixedPeriod) Priority() int                  { return contracts.PriorityMaxHolding }
func (e *FixedPeriod) Reason() contracts.ExitReason   { return contracts.ExitReasonStrategy }
func (e *FixedPeriod) Trigger() contracts.ExitTrigger { return contracts.TriggerMaxHolding }

func (e *FixedPeriod) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		if pos.HoldingDays >= e.maxDays {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.ExitStrategy {
	return &FixedPeriod{maxDays: params.Int("max_days", 30)}
}
`

const trendReverseSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type TrendReverse struct {
	window int
}

func (e *TrendReverse) Name() string                   { return "trend_reverse" }
func (e *TrendReverse) Priority() int                  { return contracts.PriorityReverseEntry }
func (e *TrendReverse) Reason() contracts.ExitReason   { return contracts.ExitReasonReverseEntry }
func (e *TrendReverse) Trigger() contracts.ExitTrigger { return contracts.TriggerSignalReverse }

func (e *TrendReverse) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		bars := data.History(pos.Code, date, e.window)
		if len(bars) < e.window {
			continue
		}
		var ma float64
		for _, b := range bars {
			ma += b.Close
		}
		ma /= float64(e.window)
		if bars[len(bars)-1].Close < ma {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}

func New(params contracts.Params) contracts.ExitStrategy {
	return &TrendReverse{window: params.Int("window", 20)}
}
`
