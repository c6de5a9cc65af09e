package backtest

import (
	"sort"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Exit Resolution Manager
// Evaluates every configured exit against the open positions and emits at
// most one sell decision per position per day. Conflicts resolve by
// priority with an explicit comparator, never by iteration order.
// =============================================================================

// ExitDecision is one resolved sell for one position.
type ExitDecision struct {
	Code     string
	Strategy string
	Priority int
	Reason   contracts.ExitReason
	Trigger  contracts.ExitTrigger
}

// wins reports whether d beats other for the same position. Higher
// priority first, then strategy name to keep resolution deterministic
// when two strategies share a priority.
func (d ExitDecision) wins(other ExitDecision) bool {
	if d.Priority != other.Priority {
		return d.Priority > other.Priority
	}
	return d.Strategy < other.Strategy
}

type ExitResolver struct {
	exits []contracts.ExitStrategy
}

func NewExitResolver(exits []contracts.ExitStrategy) *ExitResolver {
	return &ExitResolver{exits: exits}
}

// Resolve runs every exit strategy once over the positions and collapses
// the fired signals to one decision per code. A strategy that errors is
// skipped for the day and reported as a fault; a position no strategy
// fires on stays open regardless of what the current selector thinks.
func (r *ExitResolver) Resolve(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]ExitDecision, []contracts.Fault) {
	if len(positions) == 0 {
		return nil, nil
	}
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		held[pos.Code] = true
	}

	best := make(map[string]ExitDecision)
	var faults []contracts.Fault

	for _, exit := range r.exits {
		fired, err := exit.ExitSignals(positions, data, date)
		if err != nil {
			faults = append(faults, contracts.Fault{
				Date:     date,
				Stage:    "exit",
				Strategy: exit.Name(),
				Message:  err.Error(),
			})
			continue
		}
		for _, code := range fired {
			if !held[code] {
				continue
			}
			d := ExitDecision{
				Code:     code,
				Strategy: exit.Name(),
				Priority: exit.Priority(),
				Reason:   exit.Reason(),
				Trigger:  exit.Trigger(),
			}
			if cur, ok := best[code]; !ok || d.wins(cur) {
				best[code] = d
			}
		}
	}

	out := make([]ExitDecision, 0, len(best))
	for _, d := range best {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, faults
}
