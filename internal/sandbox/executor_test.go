package sandbox

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

func testPanel() *contracts.MarketData {
	bar := func(y int, m time.Month, d int, close float64) contracts.Bar {
		return contracts.Bar{Date: contracts.Day(y, m, d), Open: close, High: close, Low: close, Close: close, Volume: 1e6}
	}
	return contracts.NewMarketData(map[string][]contracts.Bar{
		"600000": {bar(2024, 1, 2, 10.0), bar(2024, 1, 3, 11.0)},
		"600519": {bar(2024, 1, 2, 100.0), bar(2024, 1, 3, 101.0)},
		"000001": {bar(2024, 1, 2, 20.0), bar(2024, 1, 3, 19.0)},
	})
}

func newTestExecutor(limits Limits) *Executor {
	log := logger.Nop()
	return NewExecutor(limits, log, audit.New(log, 64))
}

// seed validates and stores one runnable strategy record.
func seed(t *testing.T, store *strategy.MemStore, name, className, code string, role contracts.Role) *strategy.Strategy {
	t.Helper()
	res := Validate(code, className, role)
	require.True(t, res.Valid, "seed strategy must validate: %v", res.Errors)

	rec := &strategy.Strategy{
		Name:       name,
		ClassName:  className,
		Code:       code,
		Role:       role,
		SourceType: strategy.SourceCustom,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, store.UpdateValidation(context.Background(), rec.ID, strategy.ValidationPassed, nil, res.RiskLevel))

	got, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	return got
}

// The interpreter looks up an interface's binding wrapper under the host
// type's real package path, so the contracts symbols must be registered
// under both the virtual import path and the real one. Losing the second
// key makes every constructor that returns a role interface crash the
// interpreter.
func TestSymbolsRegisterContractsUnderBothPaths(t *testing.T) {
	ex := Symbols()
	virtual, ok := ex["quant/contracts/contracts"]
	require.True(t, ok)
	host, ok := ex["github.com/sujun1972/stock-analysis-go/internal/contracts/contracts"]
	require.True(t, ok)

	for _, wrapper := range []string{"_StockSelector", "_EntryStrategy", "_ExitStrategy"} {
		_, ok := host[wrapper]
		assert.True(t, ok, "wrapper %s missing under real path", wrapper)
	}
	assert.Equal(t,
		reflect.ValueOf(virtual).Pointer(),
		reflect.ValueOf(host).Pointer(),
		"both paths must share one symbol map")
}

func TestLoadAndSelect(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "top_gainers", "TopGainers", goodSelector, contracts.RoleSelector)

	exec := newTestExecutor(DefaultLimits())
	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.CodeHash, h.CodeHash)

	sel, err := h.Selector(context.Background(), contracts.Params{"top_n": 2})
	require.NoError(t, err)
	assert.Equal(t, "top_gainers", sel.Name())

	picks, err := sel.Select(contracts.Day(2024, 1, 3), testPanel())
	require.NoError(t, err)
	// 600000 gained 10%, 600519 1%, 000001 lost 5%.
	assert.Equal(t, []string{"600000", "600519"}, picks)
}

func TestLoadRejectsTamperedCode(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "top_gainers", "TopGainers", goodSelector, contracts.RoleSelector)

	store.TamperCode(rec.ID, goodSelector+"\n// trailing edit\n")
	tampered, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	exec := newTestExecutor(DefaultLimits())
	_, err = exec.Load(context.Background(), tampered)

	var terr *contracts.StrategyTamperedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, rec.ID, terr.StrategyID)
}

func TestLoadRejectsUnvalidated(t *testing.T) {
	store := strategy.NewMemStore()
	rec := &strategy.Strategy{
		Name:       "pending_one",
		ClassName:  "TopGainers",
		Code:       goodSelector,
		Role:       contracts.RoleSelector,
		SourceType: strategy.SourceAI,
	}
	require.NoError(t, store.Create(context.Background(), rec))

	exec := newTestExecutor(DefaultLimits())
	_, err := exec.Load(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not runnable")
}

const spinningSelector = `package strategy

import (
	"time"

	"quant/contracts"
)

type Spinner struct{}

func New(p contracts.Params) contracts.StockSelector { return &Spinner{} }

func (s *Spinner) Name() string { return "spinner" }

func (s *Spinner) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	n := 0
	for {
		n++
	}
}
`

func TestInvokeTimeoutPoisonsHandle(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "spinner", "Spinner", spinningSelector, contracts.RoleSelector)

	limits := DefaultLimits()
	limits.InvokeTimeout = 50 * time.Millisecond
	exec := newTestExecutor(limits)

	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)
	sel, err := h.Selector(context.Background(), nil)
	require.NoError(t, err)

	_, err = sel.Select(contracts.Day(2024, 1, 3), testPanel())
	var viol *contracts.SandboxViolation
	require.ErrorAs(t, err, &viol)
	assert.Equal(t, "Select", viol.Method)
	assert.True(t, h.Poisoned())

	// Every call after the violation refuses immediately.
	_, err = sel.Select(contracts.Day(2024, 1, 3), testPanel())
	assert.ErrorIs(t, err, ErrHandlePoisoned)
}

const panickingSelector = `package strategy

import (
	"time"

	"quant/contracts"
)

type Bomb struct{}

func New(p contracts.Params) contracts.StockSelector { return &Bomb{} }

func (s *Bomb) Name() string { return "bomb" }

func (s *Bomb) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	panic("boom")
}
`

func TestPanicBecomesExecutionError(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "bomb", "Bomb", panickingSelector, contracts.RoleSelector)

	exec := newTestExecutor(DefaultLimits())
	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)
	sel, err := h.Selector(context.Background(), nil)
	require.NoError(t, err)

	_, err = sel.Select(contracts.Day(2024, 1, 3), testPanel())
	var execErr *contracts.StrategyExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Err.Error(), "panic")
	assert.False(t, h.Poisoned(), "a panic is contained, not a poisoning event")
}

const everythingSelector = `package strategy

import (
	"time"

	"quant/contracts"
)

type All struct{}

func New(p contracts.Params) contracts.StockSelector { return &All{} }

func (s *All) Name() string { return "all" }

func (s *All) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return data.Symbols(), nil
}
`

func TestSignalCap(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "all", "All", everythingSelector, contracts.RoleSelector)

	limits := DefaultLimits()
	limits.MaxSignals = 2
	exec := newTestExecutor(limits)

	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)
	sel, err := h.Selector(context.Background(), nil)
	require.NoError(t, err)

	_, err = sel.Select(contracts.Day(2024, 1, 3), testPanel())
	var viol *contracts.SandboxViolation
	require.ErrorAs(t, err, &viol)
	assert.Contains(t, viol.Limit, "max_signals")
}

const hardStopExit = `package strategy

import (
	"time"

	"quant/contracts"
)

type HardStop struct {
	pct float64
}

func New(p contracts.Params) contracts.ExitStrategy {
	return &HardStop{pct: p.Float("stop_pct", 0.07)}
}

func (s *HardStop) Name() string                   { return "hard_stop" }
func (s *HardStop) Priority() int                  { return contracts.PriorityStopLoss }
func (s *HardStop) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (s *HardStop) Trigger() contracts.ExitTrigger { return contracts.TriggerStopLoss }

func (s *HardStop) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok {
			continue
		}
		if px <= pos.EntryPrice*(1-s.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}
`

func TestExitRoleInstantiation(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "hard_stop", "HardStop", hardStopExit, contracts.RoleExit)

	exec := newTestExecutor(DefaultLimits())
	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)

	exit, err := h.Exit(context.Background(), contracts.Params{"stop_pct": 0.05})
	require.NoError(t, err)
	assert.Equal(t, contracts.PriorityStopLoss, exit.Priority())
	assert.Equal(t, contracts.ExitReasonRiskControl, exit.Reason())
	assert.Equal(t, contracts.TriggerStopLoss, exit.Trigger())

	positions := []contracts.PositionSnapshot{
		{Code: "000001", EntryPrice: 20.0, Shares: 100}, // closed at 19.0 on day 2, a 5% loss
		{Code: "600000", EntryPrice: 10.0, Shares: 100}, // up 10%
	}
	hits, err := exit.ExitSignals(positions, testPanel(), contracts.Day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"000001"}, hits)
}

func TestRoleMismatch(t *testing.T) {
	store := strategy.NewMemStore()
	rec := seed(t, store, "top_gainers", "TopGainers", goodSelector, contracts.RoleSelector)

	exec := newTestExecutor(DefaultLimits())
	h, err := exec.Load(context.Background(), rec)
	require.NoError(t, err)

	_, err = h.Entry(context.Background(), nil)
	require.Error(t, err)
	_, err = h.Exit(context.Background(), nil)
	require.Error(t, err)
}
