package strategies

import (
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Built-in entry strategies
// EntrySignals returns advisory weights per code; the portfolio layer
// turns weights into share counts against available cash.
// =============================================================================

// equalWeights assigns 1/n to each code.
func equalWeights(codes []string) map[string]float64 {
	if len(codes) == 0 {
		return map[string]float64{}
	}
	w := 1.0 / float64(len(codes))
	out := make(map[string]float64, len(codes))
	for _, c := range codes {
		out[c] = w
	}
	return out
}

// -----------------------------------------------------------------------------
// Immediate
// -----------------------------------------------------------------------------

// ImmediateEntry buys every candidate at equal weight as soon as it
// appears in the pool.
type ImmediateEntry struct{}

func NewImmediateEntry(contracts.Params) *ImmediateEntry { return &ImmediateEntry{} }

func (e *ImmediateEntry) Name() string { return "immediate" }

func (e *ImmediateEntry) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	tradable := make([]string, 0, len(candidates))
	for _, code := range candidates {
		if _, ok := data.Bar(code, date); ok {
			tradable = append(tradable, code)
		}
	}
	return equalWeights(tradable), nil
}

// -----------------------------------------------------------------------------
// Moving-average breakout
// -----------------------------------------------------------------------------

// MABreakoutEntry buys a candidate on the day its close crosses above
// the window-day moving average.
type MABreakoutEntry struct {
	window int
}

func NewMABreakoutEntry(p contracts.Params) *MABreakoutEntry {
	return &MABreakoutEntry{window: p.Int("window", 20)}
}

func (e *MABreakoutEntry) Name() string { return "ma_breakout" }

func (e *MABreakoutEntry) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	var triggered []string
	for _, code := range candidates {
		bars := data.History(code, date, e.window+1)
		if len(bars) < e.window+1 {
			continue
		}
		today := bars[len(bars)-1]
		if !today.Date.Equal(date) {
			continue
		}
		cs := make([]float64, len(bars))
		for i, b := range bars {
			cs[i] = b.Close
		}
		maToday := mean(cs[1:])
		maPrev := mean(cs[:len(cs)-1])
		prevClose := cs[len(cs)-2]
		if today.Close > maToday && prevClose <= maPrev {
			triggered = append(triggered, code)
		}
	}
	return equalWeights(triggered), nil
}

// -----------------------------------------------------------------------------
// RSI oversold
// -----------------------------------------------------------------------------

// RSIOversoldEntry buys candidates whose RSI has fallen below the
// threshold.
type RSIOversoldEntry struct {
	period    int
	threshold float64
}

func NewRSIOversoldEntry(p contracts.Params) *RSIOversoldEntry {
	return &RSIOversoldEntry{
		period:    p.Int("period", 14),
		threshold: p.Float("threshold", 30),
	}
}

func (e *RSIOversoldEntry) Name() string { return "rsi_oversold" }

func (e *RSIOversoldEntry) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	var triggered []string
	for _, code := range candidates {
		v, ok := rsi(data, code, date, e.period)
		if !ok {
			continue
		}
		if v < e.threshold {
			triggered = append(triggered, code)
		}
	}
	return equalWeights(triggered), nil
}
