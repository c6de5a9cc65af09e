package backtest

import (
	"math"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// TradingDaysPerYear is the A-share annualization convention.
const TradingDaysPerYear = 252

// Metrics summarize one completed run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Volatility       float64 `json:"volatility"`
	WinRate          float64 `json:"win_rate"`
	TradeCount       int     `json:"trade_count"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	FinalEquity      float64 `json:"final_equity"`
}

// ComputeMetrics derives the summary from the equity curve and the trade
// ledger. Risk-free rate is taken as zero.
func ComputeMetrics(initial float64, curve []contracts.EquityPoint, trades []contracts.Trade) Metrics {
	m := Metrics{FinalEquity: initial}
	if len(curve) > 0 {
		m.FinalEquity = curve[len(curve)-1].Equity
	}
	if initial > 0 {
		m.TotalReturn = m.FinalEquity/initial - 1
	}

	if n := len(curve); n > 0 {
		exponent := float64(TradingDaysPerYear) / float64(n)
		base := 1 + m.TotalReturn
		if base > 0 {
			m.AnnualizedReturn = math.Pow(base, exponent) - 1
		} else {
			m.AnnualizedReturn = -1
		}
	}

	daily := dailyReturns(initial, curve)
	if len(daily) > 1 {
		mu := meanOf(daily)
		sd := stddev(daily, mu)
		m.Volatility = sd * math.Sqrt(TradingDaysPerYear)
		if sd > 0 {
			m.SharpeRatio = mu / sd * math.Sqrt(TradingDaysPerYear)
		}
		if dd := downsideDev(daily); dd > 0 {
			m.SortinoRatio = mu / dd * math.Sqrt(TradingDaysPerYear)
		}
	}

	peak := initial
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := 1 - pt.Equity/peak
			if dd > m.MaxDrawdown {
				m.MaxDrawdown = dd
			}
		}
	}

	for _, tr := range trades {
		if tr.Side != contracts.SideSell {
			continue
		}
		m.TradeCount++
		if tr.PnL > 0 {
			m.WinningTrades++
		} else {
			m.LosingTrades++
		}
	}
	if m.TradeCount > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TradeCount)
	}
	return m
}

func dailyReturns(initial float64, curve []contracts.EquityPoint) []float64 {
	if len(curve) == 0 {
		return nil
	}
	out := make([]float64, 0, len(curve))
	prev := initial
	for _, pt := range curve {
		if prev > 0 {
			out = append(out, pt.Equity/prev-1)
		}
		prev = pt.Equity
	}
	return out
}

func meanOf(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// downsideDev is the sample deviation of negative returns only, with zero
// as the minimum acceptable return.
func downsideDev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vs {
		if v < 0 {
			ss += v * v
		}
	}
	return math.Sqrt(ss / float64(len(vs)-1))
}

func stddev(vs []float64, mu float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vs {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vs)-1))
}
