package strategies

import (
	"sort"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Built-in selectors
// All selectors return their picks in deterministic order: ranked by
// score, ties broken by code, so a repeated run produces the same list.
// =============================================================================

type scoredCode struct {
	code  string
	score float64
}

// rankTop sorts descending by score (ascending when asc), ties by code,
// and returns the first n codes.
func rankTop(all []scoredCode, n int, asc bool) []string {
	sort.Slice(all, func(i, j int) bool {
		si, sj := all[i].score, all[j].score
		if si == sj {
			return all[i].code < all[j].code
		}
		if asc {
			return si < sj
		}
		return si > sj
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, s := range all[:n] {
		out = append(out, s.code)
	}
	return out
}

// -----------------------------------------------------------------------------
// Momentum
// -----------------------------------------------------------------------------

// MomentumSelector ranks the universe by trailing return and keeps the
// strongest names.
type MomentumSelector struct {
	lookback int
	topN     int
}

func NewMomentumSelector(p contracts.Params) *MomentumSelector {
	return &MomentumSelector{
		lookback: p.Int("lookback", 20),
		topN:     p.Int("top_n", 10),
	}
}

func (s *MomentumSelector) Name() string { return "momentum" }

func (s *MomentumSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	var all []scoredCode
	for _, code := range data.Symbols() {
		ret, ok := periodReturn(data, code, date, s.lookback)
		if !ok {
			continue
		}
		all = append(all, scoredCode{code, ret})
	}
	return rankTop(all, s.topN, false), nil
}

// -----------------------------------------------------------------------------
// Reversal
// -----------------------------------------------------------------------------

// ReversalSelector keeps the weakest names over a short window, betting
// on mean reversion.
type ReversalSelector struct {
	lookback int
	topN     int
}

func NewReversalSelector(p contracts.Params) *ReversalSelector {
	return &ReversalSelector{
		lookback: p.Int("lookback", 5),
		topN:     p.Int("top_n", 10),
	}
}

func (s *ReversalSelector) Name() string { return "reversal" }

func (s *ReversalSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	var all []scoredCode
	for _, code := range data.Symbols() {
		ret, ok := periodReturn(data, code, date, s.lookback)
		if !ok {
			continue
		}
		all = append(all, scoredCode{code, ret})
	}
	return rankTop(all, s.topN, true), nil
}

// -----------------------------------------------------------------------------
// Model-score selector
// -----------------------------------------------------------------------------

// MLSelector ranks by an external model score. When no provider is
// plugged in it falls back to a linear factor combination, so backtests
// run without a trained model present.
type MLSelector struct {
	provider contracts.ScoreProvider
	topN     int
	minScore float64
}

func NewMLSelector(p contracts.Params, provider contracts.ScoreProvider) *MLSelector {
	if provider == nil {
		provider = LinearFactorScore{}
	}
	return &MLSelector{
		provider: provider,
		topN:     p.Int("top_n", 10),
		minScore: p.Float("min_score", 0),
	}
}

func (s *MLSelector) Name() string { return "ml_score" }

func (s *MLSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	var all []scoredCode
	for _, code := range data.Symbols() {
		score, ok := s.provider.Score(code, date, data)
		if !ok || score < s.minScore {
			continue
		}
		all = append(all, scoredCode{code, score})
	}
	return rankTop(all, s.topN, false), nil
}

// LinearFactorScore is the default ScoreProvider: long 20-day momentum,
// short 5-day reversal, small liquidity tilt.
type LinearFactorScore struct{}

func (LinearFactorScore) Score(code string, date time.Time, data *contracts.MarketData) (float64, bool) {
	mom, ok := periodReturn(data, code, date, 20)
	if !ok {
		return 0, false
	}
	rev, ok := periodReturn(data, code, date, 5)
	if !ok {
		return 0, false
	}
	bars := data.History(code, date, 5)
	var vol float64
	for _, b := range bars {
		vol += float64(b.Volume)
	}
	liq := 0.0
	if vol > 0 {
		liq = 0.01
	}
	return 0.7*mom - 0.3*rev + liq, true
}

// -----------------------------------------------------------------------------
// External list
// -----------------------------------------------------------------------------

// ExternalSelector trades a fixed, externally supplied code list,
// filtered down to names that actually have a bar on the day.
type ExternalSelector struct {
	codes []string
}

func NewExternalSelector(p contracts.Params) *ExternalSelector {
	codes := p.Strings("codes")
	sort.Strings(codes)
	return &ExternalSelector{codes: codes}
}

func (s *ExternalSelector) Name() string { return "external_list" }

func (s *ExternalSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	out := make([]string, 0, len(s.codes))
	for _, code := range s.codes {
		if _, ok := data.Bar(code, date); ok {
			out = append(out, code)
		}
	}
	return out, nil
}
