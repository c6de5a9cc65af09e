package strategies

import (
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Indicator helpers shared by the built-in strategies
// =============================================================================

// closes extracts the close series for the last n bars up to asOf.
// Returns nil when fewer than n bars exist.
func closes(data *contracts.MarketData, code string, asOf time.Time, n int) []float64 {
	bars := data.History(code, asOf, n)
	if len(bars) < n {
		return nil
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// mean of a full slice. Callers guarantee len > 0.
func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// movingAverage returns the simple moving average of the last window
// closes up to asOf, false when history is short.
func movingAverage(data *contracts.MarketData, code string, asOf time.Time, window int) (float64, bool) {
	cs := closes(data, code, asOf, window)
	if cs == nil {
		return 0, false
	}
	return mean(cs), true
}

// periodReturn is close(asOf)/close(asOf-lookback) - 1 over the last
// lookback+1 bars, false when history is short or the base close is zero.
func periodReturn(data *contracts.MarketData, code string, asOf time.Time, lookback int) (float64, bool) {
	cs := closes(data, code, asOf, lookback+1)
	if cs == nil || cs[0] == 0 {
		return 0, false
	}
	return cs[len(cs)-1]/cs[0] - 1, true
}

// rsi is the classic Wilder RSI over period bars, computed from period+1
// closes. Returns false when history is short.
func rsi(data *contracts.MarketData, code string, asOf time.Time, period int) (float64, bool) {
	cs := closes(data, code, asOf, period+1)
	if cs == nil {
		return 0, false
	}
	var gains, losses float64
	for i := 1; i < len(cs); i++ {
		diff := cs[i] - cs[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs), true
}
