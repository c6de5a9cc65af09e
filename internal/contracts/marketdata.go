package contracts

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// MarketData is an immutable multi-symbol daily price panel.
// The engine hands strategies a view truncated at the simulated day
// (see UpTo), so strategy code cannot observe future bars.
type MarketData struct {
	series map[string][]Bar // per symbol, ascending by date
	days   []time.Time      // sorted union of all bar dates
	cutoff time.Time        // zero = unbounded
}

// NewMarketData builds a panel from per-symbol bar slices. Bars are copied
// and sorted; input maps and slices are not retained.
func NewMarketData(series map[string][]Bar) *MarketData {
	m := &MarketData{series: make(map[string][]Bar, len(series))}

	seen := make(map[time.Time]struct{})
	for code, bars := range series {
		cp := make([]Bar, len(bars))
		copy(cp, bars)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
		m.series[code] = cp
		for _, b := range cp {
			seen[b.Date] = struct{}{}
		}
	}

	m.days = make([]time.Time, 0, len(seen))
	for d := range seen {
		m.days = append(m.days, d)
	}
	sort.Slice(m.days, func(i, j int) bool { return m.days[i].Before(m.days[j]) })

	return m
}

// UpTo returns a view of the panel that exposes no bar after date.
// The underlying data is shared, never copied.
func (m *MarketData) UpTo(date time.Time) *MarketData {
	return &MarketData{series: m.series, days: m.days, cutoff: date}
}

// Symbols returns the panel's symbols in sorted order.
func (m *MarketData) Symbols() []string {
	out := make([]string, 0, len(m.series))
	for code := range m.series {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// TradingDays returns the panel's dates within [start, end], respecting
// the view cutoff. This is the simulated clock of a backtest.
func (m *MarketData) TradingDays(start, end time.Time) []time.Time {
	end = m.clamp(end)
	var out []time.Time
	for _, d := range m.days {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// History returns up to n bars for code, ending at the latest bar on or
// before asOf. Returns nil when the symbol is unknown or has no bars yet.
func (m *MarketData) History(code string, asOf time.Time, n int) []Bar {
	bars, ok := m.series[code]
	if !ok || n <= 0 {
		return nil
	}
	asOf = m.clamp(asOf)

	// First index strictly after asOf.
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(asOf) })
	if hi == 0 {
		return nil
	}
	lo := hi - n
	if lo < 0 {
		lo = 0
	}
	out := make([]Bar, hi-lo)
	copy(out, bars[lo:hi])
	return out
}

// AllBars returns a copy of every bar for code up to the view cutoff.
func (m *MarketData) AllBars(code string) []Bar {
	bars, ok := m.series[code]
	if !ok {
		return nil
	}
	if m.cutoff.IsZero() {
		out := make([]Bar, len(bars))
		copy(out, bars)
		return out
	}
	return m.History(code, m.cutoff, len(bars))
}

// Bar returns the exact bar for code on date, if one exists.
func (m *MarketData) Bar(code string, date time.Time) (Bar, bool) {
	bars, ok := m.series[code]
	if !ok || date.After(m.clamp(date)) {
		return Bar{}, false
	}
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(date) })
	if i < len(bars) && bars[i].Date.Equal(date) {
		return bars[i], true
	}
	return Bar{}, false
}

// Close returns the closing price for code on date, if the symbol traded.
func (m *MarketData) Close(code string, date time.Time) (float64, bool) {
	b, ok := m.Bar(code, date)
	if !ok {
		return 0, false
	}
	return b.Close, true
}

// LastClose returns the most recent close on or before asOf.
func (m *MarketData) LastClose(code string, asOf time.Time) (float64, bool) {
	h := m.History(code, asOf, 1)
	if len(h) == 0 {
		return 0, false
	}
	return h[0].Close, true
}

func (m *MarketData) clamp(t time.Time) time.Time {
	if !m.cutoff.IsZero() && t.After(m.cutoff) {
		return m.cutoff
	}
	return t
}

// Day normalizes a timestamp to midnight UTC; panel dates are keyed this way.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
