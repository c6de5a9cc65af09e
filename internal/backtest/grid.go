package backtest

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Grid search
// Cartesian product of selectors × entries × exit sets × cadences, each
// cell an independent sequential run with its own portfolio. Parallelism
// exists only across cells; the only contended state is the strategy
// cache and the audit log, both safe for concurrent use.
// =============================================================================

// GridSpec describes a combination sweep.
type GridSpec struct {
	Selectors []StrategyRef             `json:"selectors"`
	Entries   []StrategyRef             `json:"entries"`
	ExitSets  [][]StrategyRef           `json:"exit_sets"`
	Freqs     []contracts.RebalanceFreq `json:"freqs"`

	Base          Request `json:"base"` // dates, capital, frictions, universe
	MaxConcurrent int     `json:"max_concurrent"`
}

// Cells returns the number of combinations the spec expands to.
func (s *GridSpec) Cells() int {
	return len(s.Selectors) * len(s.Entries) * len(s.ExitSets) * len(s.Freqs)
}

// GridCell is the outcome of one combination.
type GridCell struct {
	Combination Combination `json:"combination"`
	Metrics     Metrics     `json:"metrics"`
	FaultCount  int         `json:"fault_count"`
	Error       string      `json:"error,omitempty"`
}

// RunGrid sweeps every combination. A failed cell is reported in place,
// not fatal to the sweep; only cancellation aborts the whole grid.
func (e *Engine) RunGrid(ctx context.Context, spec *GridSpec, data *contracts.MarketData) ([]GridCell, error) {
	combos := make([]Combination, 0, spec.Cells())
	for _, sel := range spec.Selectors {
		for _, ent := range spec.Entries {
			for _, exits := range spec.ExitSets {
				for _, freq := range spec.Freqs {
					combos = append(combos, Combination{
						Selector:      sel,
						Entry:         ent,
						Exits:         exits,
						RebalanceFreq: freq,
					})
				}
			}
		}
	}

	cells := make([]GridCell, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	limit := spec.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i, combo := range combos {
		i, combo := i, combo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			req := spec.Base
			req.Combination = combo
			cells[i].Combination = combo

			res, err := e.Run(gctx, &req, data, nil)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				cells[i].Error = err.Error()
				return nil
			}
			cells[i].Metrics = res.Metrics
			cells[i].FaultCount = len(res.Faults)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cells, nil
}

// RankByReturn orders cells best-first, failed cells last. Ordering is
// total, so a repeated sweep ranks identically.
func RankByReturn(cells []GridCell) {
	sort.SliceStable(cells, func(i, j int) bool {
		if (cells[i].Error == "") != (cells[j].Error == "") {
			return cells[i].Error == ""
		}
		return cells[i].Metrics.TotalReturn > cells[j].Metrics.TotalReturn
	})
}
