package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// =============================================================================
// Backtest Engine
// Strictly sequential over simulated time. Per day, in fixed order:
// ExitCheck (always) → Selector refresh (cadence dates only) → EntryCheck
// over the current candidate pool → advance. Rebalancing never sells;
// every sell is owned by an exit strategy.
// =============================================================================

// Request describes one run.
type Request struct {
	Combination    Combination `json:"combination"`
	StockCodes     []string    `json:"stock_codes,omitempty"` // optional universe restriction
	StartDate      time.Time   `json:"start_date"`
	EndDate        time.Time   `json:"end_date"`
	InitialCapital float64     `json:"initial_capital"`
	Frictions      Frictions   `json:"frictions"`
}

// Result is the full outcome of one run.
type Result struct {
	Trades      []contracts.Trade       `json:"trades"`
	EquityCurve []contracts.EquityPoint `json:"equity_curve"`
	Metrics     Metrics                 `json:"metrics"`
	Faults      []contracts.Fault       `json:"faults,omitempty"`
}

// ProgressFunc is invoked after each simulated day.
type ProgressFunc func(done, total int)

type Engine struct {
	composer *Composer
	log      *logger.Logger
}

func NewEngine(composer *Composer, log *logger.Logger) *Engine {
	return &Engine{composer: composer, log: log}
}

// Run simulates one combination over the panel. Selector failures abort
// the run; entry and exit failures are isolated per day and reported in
// the result's fault list. Cancellation is checked at the start of every
// simulated day.
func (e *Engine) Run(ctx context.Context, req *Request, data *contracts.MarketData, progress ProgressFunc) (*Result, error) {
	if req.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %.2f", req.InitialCapital)
	}

	composed, err := e.composer.Materialize(ctx, &req.Combination)
	if err != nil {
		return nil, err
	}

	if len(req.StockCodes) > 0 {
		data = restrictUniverse(data, req.StockCodes)
	}
	days := data.TradingDays(req.StartDate, req.EndDate)
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))
	}

	portfolio := NewPortfolio(req.InitialCapital, req.Frictions)
	resolver := NewExitResolver(composed.Exits)
	result := &Result{}

	var candidates []string
	lastRebalance := time.Time{}

	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		view := data.UpTo(day)

		// ExitCheck. A code sold today leaves the candidate pool until
		// the next selection cycle picks it again, so the same exit
		// cannot be round-tripped within one cycle.
		decisions, faults := resolver.Resolve(portfolio.Snapshots(), view, day)
		result.Faults = append(result.Faults, faults...)
		for _, d := range decisions {
			px, ok := view.Close(d.Code, day)
			if !ok {
				// Suspended symbol: nothing to fill against, stays open.
				continue
			}
			if _, err := portfolio.Sell(d.Code, px, day, d.Reason, d.Trigger, d.Strategy); err != nil {
				result.Faults = append(result.Faults, contracts.Fault{
					Date: day, Stage: "exit", Strategy: d.Strategy, Code: d.Code, Message: err.Error(),
				})
				continue
			}
			candidates = removeCode(candidates, d.Code)
		}

		// Selector refresh on cadence dates only. A selector failure
		// leaves no salvageable candidate pool, so the run aborts.
		if isRebalanceDay(composed.RebalanceFreq, day, lastRebalance) {
			picked, err := composed.Selector.Select(day, view)
			if err != nil {
				return nil, fmt.Errorf("selector %s on %s: %w",
					composed.Selector.Name(), day.Format("2006-01-02"), err)
			}
			candidates = picked
			lastRebalance = day
		}

		// EntryCheck runs daily over the current pool; only unheld
		// candidates are ever bought.
		if len(candidates) > 0 {
			e.enterPositions(portfolio, composed.Entry, candidates, view, day, result)
		}

		portfolio.Advance(day, view)
		result.EquityCurve = append(result.EquityCurve, portfolio.MarkToMarket(day, view))
		if progress != nil {
			progress(i+1, len(days))
		}
	}

	result.Trades = portfolio.Trades()
	result.Metrics = ComputeMetrics(req.InitialCapital, result.EquityCurve, result.Trades)
	return result, nil
}

// enterPositions evaluates the entry strategy and applies the resulting
// buys. Failures here never abort the run.
func (e *Engine) enterPositions(portfolio *Portfolio, entry contracts.EntryStrategy,
	candidates []string, view *contracts.MarketData, day time.Time, result *Result) {

	unheld := make([]string, 0, len(candidates))
	for _, code := range candidates {
		if !portfolio.Holds(code) {
			unheld = append(unheld, code)
		}
	}
	if len(unheld) == 0 {
		return
	}

	weights, err := entry.EntrySignals(unheld, view, day)
	if err != nil {
		result.Faults = append(result.Faults, contracts.Fault{
			Date: day, Stage: "entry", Strategy: entry.Name(), Message: err.Error(),
		})
		return
	}
	if len(weights) == 0 {
		return
	}

	codes := make([]string, 0, len(weights))
	for code := range weights {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	budget := portfolio.Cash()
	for _, code := range codes {
		px, ok := view.Close(code, day)
		if !ok {
			continue
		}
		shares := portfolio.SharesFor(budget*weights[code], px)
		if shares == 0 {
			continue
		}
		if err := portfolio.Buy(code, px, shares, day); err != nil {
			result.Faults = append(result.Faults, contracts.Fault{
				Date: day, Stage: "entry", Strategy: entry.Name(), Code: code, Message: err.Error(),
			})
		}
	}
}

// isRebalanceDay reports whether the selector should re-run. Weekly and
// monthly cadences fire on the first trading day of each calendar
// boundary; the very first day of a run always rebalances.
func isRebalanceDay(freq contracts.RebalanceFreq, day, last time.Time) bool {
	if last.IsZero() {
		return true
	}
	switch freq {
	case contracts.RebalanceDaily:
		return true
	case contracts.RebalanceWeekly:
		ly, lw := last.ISOWeek()
		dy, dw := day.ISOWeek()
		return ly != dy || lw != dw
	case contracts.RebalanceMonthly:
		return last.Year() != day.Year() || last.Month() != day.Month()
	}
	return false
}

func removeCode(codes []string, code string) []string {
	out := codes[:0]
	for _, c := range codes {
		if c != code {
			out = append(out, c)
		}
	}
	return out
}

// restrictUniverse narrows the panel to the requested codes.
func restrictUniverse(data *contracts.MarketData, codes []string) *contracts.MarketData {
	keep := make(map[string][]contracts.Bar, len(codes))
	for _, code := range codes {
		bars := data.AllBars(code)
		if len(bars) > 0 {
			keep[code] = bars
		}
	}
	return contracts.NewMarketData(keep)
}
