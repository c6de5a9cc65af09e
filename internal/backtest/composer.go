package backtest

import (
	"context"
	"fmt"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategies"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

// =============================================================================
// Strategy Composer
// Checks that a requested combination is complete, then materializes it:
// built-in slugs resolve to native implementations, everything else is
// loaded from the record store through the sandbox cache.
// =============================================================================

// StrategyRef names one strategy plus its instantiation params.
type StrategyRef struct {
	Name   string           `json:"name"`
	Params contracts.Params `json:"params,omitempty"`
}

// Combination is the three-layer strategy selection for one run.
type Combination struct {
	Selector      StrategyRef             `json:"selector"`
	Entry         StrategyRef             `json:"entry"`
	Exits         []StrategyRef           `json:"exits"`
	RebalanceFreq contracts.RebalanceFreq `json:"rebalance_freq"`
}

// Validate rejects incomplete combinations before any simulation cost is
// incurred. An empty exit list is invalid: a run with no way out of a
// position is never meaningful.
func (c *Combination) Validate() error {
	var problems []string
	if c.Selector.Name == "" {
		problems = append(problems, "selector is required")
	}
	if c.Entry.Name == "" {
		problems = append(problems, "entry strategy is required")
	}
	if len(c.Exits) == 0 {
		problems = append(problems, "at least one exit strategy is required")
	}
	seen := make(map[string]bool, len(c.Exits))
	for _, ref := range c.Exits {
		if ref.Name == "" {
			problems = append(problems, "exit strategy name must not be empty")
			continue
		}
		if seen[ref.Name] {
			problems = append(problems, fmt.Sprintf("duplicate exit strategy %q", ref.Name))
		}
		seen[ref.Name] = true
	}
	if !c.RebalanceFreq.Valid() {
		problems = append(problems, fmt.Sprintf("rebalance_freq must be D, W or M, got %q", c.RebalanceFreq))
	}
	if len(problems) > 0 {
		return &contracts.CombinationInvalidError{Problems: problems}
	}
	return nil
}

// Composed is a fully materialized combination, ready to drive a run.
type Composed struct {
	Selector      contracts.StockSelector
	Entry         contracts.EntryStrategy
	Exits         []contracts.ExitStrategy
	RebalanceFreq contracts.RebalanceFreq
}

type Composer struct {
	registry *strategies.Registry
	store    strategy.Store
	cache    *sandbox.Cache
}

func NewComposer(registry *strategies.Registry, store strategy.Store, cache *sandbox.Cache) *Composer {
	return &Composer{registry: registry, store: store, cache: cache}
}

// Materialize validates and instantiates every layer of the combination.
func (c *Composer) Materialize(ctx context.Context, comb *Combination) (*Composed, error) {
	if err := comb.Validate(); err != nil {
		return nil, err
	}

	out := &Composed{RebalanceFreq: comb.RebalanceFreq}

	if sel, ok := c.registry.Selector(comb.Selector.Name, comb.Selector.Params); ok {
		out.Selector = sel
	} else {
		h, params, err := c.loadSandboxed(ctx, contracts.RoleSelector, comb.Selector)
		if err != nil {
			return nil, err
		}
		if out.Selector, err = h.Selector(ctx, params); err != nil {
			return nil, err
		}
	}

	if ent, ok := c.registry.Entry(comb.Entry.Name, comb.Entry.Params); ok {
		out.Entry = ent
	} else {
		h, params, err := c.loadSandboxed(ctx, contracts.RoleEntry, comb.Entry)
		if err != nil {
			return nil, err
		}
		if out.Entry, err = h.Entry(ctx, params); err != nil {
			return nil, err
		}
	}

	for _, ref := range comb.Exits {
		if exit, ok := c.registry.Exit(ref.Name, ref.Params); ok {
			out.Exits = append(out.Exits, exit)
			continue
		}
		h, params, err := c.loadSandboxed(ctx, contracts.RoleExit, ref)
		if err != nil {
			return nil, err
		}
		exit, err := h.Exit(ctx, params)
		if err != nil {
			return nil, err
		}
		out.Exits = append(out.Exits, exit)
	}

	return out, nil
}

// loadSandboxed resolves a non-builtin slug through the record store and
// the sandbox cache, merging the record's default params under the
// caller-supplied overrides.
func (c *Composer) loadSandboxed(ctx context.Context, role contracts.Role, ref StrategyRef) (*sandbox.Handle, contracts.Params, error) {
	rec, err := c.store.GetByName(ctx, ref.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving strategy %q: %w", ref.Name, err)
	}
	if rec.Role != role {
		return nil, nil, &contracts.CombinationInvalidError{
			Problems: []string{fmt.Sprintf("strategy %q has role %s, expected %s", ref.Name, rec.Role, role)},
		}
	}
	h, err := c.cache.Get(ctx, rec.ID)
	if err != nil {
		return nil, nil, err
	}

	params := rec.DefaultParams.Clone()
	for k, v := range ref.Params {
		params[k] = v
	}
	return h, params, nil
}
