package backtest

import (
	"sort"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// =============================================================================
// Portfolio
// Owns cash and the mutable positions. Strategies only ever see
// PositionSnapshot copies; the engine is the sole mutator.
// =============================================================================

// BoardLot is the A-share minimum trade unit.
const BoardLot = 100

// Frictions are the trading cost rates. All default to zero.
type Frictions struct {
	Commission float64 `json:"commission"`  // both sides, rate on amount
	StampDuty  float64 `json:"stamp_duty"`  // sell side only
	Slippage   float64 `json:"slippage"`    // adverse fill, rate on price
}

// Position is one open holding.
type Position struct {
	Code         string
	EntryPrice   float64 // actual fill, slippage included
	EntryDate    time.Time
	Shares       int64
	HighestPrice float64 // highest close since entry
	HoldingDays  int     // trading days since entry
	cost         float64 // amount plus buy commission, basis for P&L
}

type Portfolio struct {
	cash      float64
	initial   float64
	frictions Frictions
	positions map[string]*Position
	trades    []contracts.Trade
}

func NewPortfolio(initialCapital float64, fr Frictions) *Portfolio {
	return &Portfolio{
		cash:      initialCapital,
		initial:   initialCapital,
		frictions: fr,
		positions: make(map[string]*Position),
	}
}

func (p *Portfolio) Cash() float64           { return p.cash }
func (p *Portfolio) InitialCapital() float64 { return p.initial }
func (p *Portfolio) Holds(code string) bool  { _, ok := p.positions[code]; return ok }
func (p *Portfolio) OpenPositions() int      { return len(p.positions) }

// Trades returns the append-only ledger.
func (p *Portfolio) Trades() []contracts.Trade { return p.trades }

// Snapshots returns read-only position views in code order.
func (p *Portfolio) Snapshots() []contracts.PositionSnapshot {
	out := make([]contracts.PositionSnapshot, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, contracts.PositionSnapshot{
			Code:         pos.Code,
			EntryPrice:   pos.EntryPrice,
			EntryDate:    pos.EntryDate,
			Shares:       pos.Shares,
			HighestPrice: pos.HighestPrice,
			HoldingDays:  pos.HoldingDays,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SharesFor converts a cash budget into a board-lot share count at the
// expected fill price. Zero when the budget does not cover one lot.
func (p *Portfolio) SharesFor(budget, price float64) int64 {
	fill := price * (1 + p.frictions.Slippage)
	perLot := fill * BoardLot * (1 + p.frictions.Commission)
	if perLot <= 0 {
		return 0
	}
	lots := int64(budget / perLot)
	return lots * BoardLot
}

// Buy opens a position. Fails with InsufficientCashError when the fill
// plus commission exceeds cash; never partially fills.
func (p *Portfolio) Buy(code string, price float64, shares int64, date time.Time) error {
	fill := price * (1 + p.frictions.Slippage)
	amount := fill * float64(shares)
	commission := amount * p.frictions.Commission
	total := amount + commission
	if total > p.cash {
		return &contracts.InsufficientCashError{Code: code, Need: total, Have: p.cash}
	}

	p.cash -= total
	p.positions[code] = &Position{
		Code:         code,
		EntryPrice:   fill,
		EntryDate:    date,
		Shares:       shares,
		HighestPrice: fill,
		cost:         total,
	}
	p.trades = append(p.trades, contracts.Trade{
		Side:        contracts.SideBuy,
		Code:        code,
		Date:        date,
		Price:       fill,
		Shares:      shares,
		Amount:      amount,
		Commission:  commission,
		EntryReason: contracts.EntryReasonSignal,
	})
	return nil
}

// Sell closes a position in full and tags the trade with the exit that
// caused it. Fails with NoPositionError when the code is not held.
func (p *Portfolio) Sell(code string, price float64, date time.Time,
	reason contracts.ExitReason, trigger contracts.ExitTrigger, strategyName string) (*contracts.Trade, error) {

	pos, ok := p.positions[code]
	if !ok {
		return nil, &contracts.NoPositionError{Code: code}
	}

	fill := price * (1 - p.frictions.Slippage)
	amount := fill * float64(pos.Shares)
	commission := amount * p.frictions.Commission
	duty := amount * p.frictions.StampDuty
	proceeds := amount - commission - duty
	p.cash += proceeds

	pnl := proceeds - pos.cost
	returnPct := 0.0
	if pos.cost > 0 {
		returnPct = pnl / pos.cost
	}

	delete(p.positions, code)
	trade := contracts.Trade{
		Side:         contracts.SideSell,
		Code:         code,
		Date:         date,
		Price:        fill,
		Shares:       pos.Shares,
		Amount:       amount,
		Commission:   commission,
		StampDuty:    duty,
		ExitReason:   reason,
		ExitTrigger:  trigger,
		ExitStrategy: strategyName,
		PnL:          pnl,
		ReturnPct:    returnPct,
	}
	p.trades = append(p.trades, trade)
	return &p.trades[len(p.trades)-1], nil
}

// MarkToMarket values the book at the day's closes. Read-only; symbols
// without a bar on the day are valued at their last known close.
func (p *Portfolio) MarkToMarket(date time.Time, data *contracts.MarketData) contracts.EquityPoint {
	equity := p.cash
	for _, pos := range p.positions {
		px, ok := data.LastClose(pos.Code, date)
		if !ok {
			px = pos.EntryPrice
		}
		equity += px * float64(pos.Shares)
	}
	ret := 0.0
	if p.initial > 0 {
		ret = equity/p.initial - 1
	}
	return contracts.EquityPoint{Date: date, Equity: equity, Return: ret}
}

// Advance rolls position state to the end of a trading day: holding days
// tick and the trailing high updates from the day's close.
func (p *Portfolio) Advance(date time.Time, data *contracts.MarketData) {
	for _, pos := range p.positions {
		pos.HoldingDays++
		if px, ok := data.Close(pos.Code, date); ok && px > pos.HighestPrice {
			pos.HighestPrice = px
		}
	}
}
