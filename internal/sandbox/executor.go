package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// =============================================================================
// Sandboxed Executor
// One interpreter per loaded strategy version. Interpreter access is
// serialized behind the handle mutex; every interpreted call runs under a
// wall-clock watchdog. A call that overruns the budget poisons the handle:
// the runaway goroutine keeps the old interpreter, the handle is evicted
// from the cache, and the next load builds a fresh one.
// =============================================================================

// ErrHandlePoisoned marks a handle whose interpreter may still be running
// an abandoned call. Callers must reload.
var ErrHandlePoisoned = errors.New("sandbox: handle poisoned, reload required")

// Limits are the per-call resource budgets. Wall clock stands in for CPU:
// interpreted strategy code is single-goroutine and CPU-bound, so the two
// track each other closely. MaxSignals caps result sizes so a strategy
// cannot balloon memory through its return values.
type Limits struct {
	LoadTimeout   time.Duration
	InvokeTimeout time.Duration
	MaxSignals    int
}

// DefaultLimits mirror the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		LoadTimeout:   5 * time.Second,
		InvokeTimeout: 2 * time.Second,
		MaxSignals:    5000,
	}
}

// Executor builds handles from validated strategy records.
type Executor struct {
	limits Limits
	log    *logger.Logger
	audit  *audit.Log
}

func NewExecutor(limits Limits, log *logger.Logger, auditLog *audit.Log) *Executor {
	if limits.LoadTimeout <= 0 {
		limits.LoadTimeout = DefaultLimits().LoadTimeout
	}
	if limits.InvokeTimeout <= 0 {
		limits.InvokeTimeout = DefaultLimits().InvokeTimeout
	}
	if limits.MaxSignals <= 0 {
		limits.MaxSignals = DefaultLimits().MaxSignals
	}
	return &Executor{limits: limits, log: log, audit: auditLog}
}

// Handle is one loaded strategy version: a dedicated interpreter plus the
// typed constructor extracted from it. Instantiation is cheap, so callers
// construct a fresh instance per run with run-specific params while the
// interpreter itself is shared and cached.
type Handle struct {
	StrategyID int64
	Name       string
	CodeHash   string
	Role       contracts.Role

	limits Limits
	log    *logger.Logger
	audit  *audit.Log

	mu       sync.Mutex // serializes all interpreter entry
	poisoned atomic.Bool

	ctorSelector func(contracts.Params) contracts.StockSelector
	ctorEntry    func(contracts.Params) contracts.EntryStrategy
	ctorExit     func(contracts.Params) contracts.ExitStrategy
}

// Poisoned reports whether the handle must be discarded.
func (h *Handle) Poisoned() bool { return h.poisoned.Load() }

// Load verifies, interprets and binds one strategy record.
//
// The hash check fails closed: a record whose stored hash does not match
// its code is never handed to the interpreter. Validation status gates
// loading the same way, so only enabled, passed strategies ever run.
func (e *Executor) Load(ctx context.Context, rec *strategy.Strategy) (*Handle, error) {
	if err := rec.VerifyHash(); err != nil {
		e.audit.Record(ctx, contracts.AuditStrategyLoad, rec.ID, rec.CodeHash,
			fmt.Sprintf("load rejected: %v", err))
		return nil, err
	}
	if !rec.Runnable() {
		err := fmt.Errorf("strategy %d (%s) is not runnable: enabled=%v status=%s",
			rec.ID, rec.Name, rec.IsEnabled, rec.ValidationStatus)
		e.audit.Record(ctx, contracts.AuditStrategyLoad, rec.ID, rec.CodeHash,
			fmt.Sprintf("load rejected: %v", err))
		return nil, err
	}

	h := &Handle{
		StrategyID: rec.ID,
		Name:       rec.Name,
		CodeHash:   rec.CodeHash,
		Role:       rec.Role,
		limits:     e.limits,
		log:        e.log,
		audit:      e.audit,
	}

	err := h.invoke(ctx, "load", e.limits.LoadTimeout, func() error {
		i := interp.New(interp.Options{})
		if err := i.Use(Symbols()); err != nil {
			return fmt.Errorf("binding symbols: %w", err)
		}
		if _, err := i.Eval(rec.Code); err != nil {
			return fmt.Errorf("interpreting code: %w", err)
		}
		v, err := i.Eval("strategy.New")
		if err != nil {
			return fmt.Errorf("resolving constructor: %w", err)
		}
		switch rec.Role {
		case contracts.RoleSelector:
			ctor, ok := v.Interface().(func(contracts.Params) contracts.StockSelector)
			if !ok {
				return fmt.Errorf("constructor has wrong signature for role %s", rec.Role)
			}
			h.ctorSelector = ctor
		case contracts.RoleEntry:
			ctor, ok := v.Interface().(func(contracts.Params) contracts.EntryStrategy)
			if !ok {
				return fmt.Errorf("constructor has wrong signature for role %s", rec.Role)
			}
			h.ctorEntry = ctor
		case contracts.RoleExit:
			ctor, ok := v.Interface().(func(contracts.Params) contracts.ExitStrategy)
			if !ok {
				return fmt.Errorf("constructor has wrong signature for role %s", rec.Role)
			}
			h.ctorExit = ctor
		default:
			return fmt.Errorf("unknown role %q", rec.Role)
		}
		return nil
	})
	if err != nil {
		e.audit.Record(ctx, contracts.AuditStrategyLoad, rec.ID, rec.CodeHash,
			fmt.Sprintf("load failed: %v", err))
		return nil, err
	}

	e.audit.Record(ctx, contracts.AuditStrategyLoad, rec.ID, rec.CodeHash, "loaded")
	e.log.WithFields(map[string]interface{}{
		"strategy": rec.Name,
		"id":       rec.ID,
		"role":     rec.Role,
	}).Debug("strategy loaded into sandbox")
	return h, nil
}

// Selector instantiates the loaded selector with run-specific params.
func (h *Handle) Selector(ctx context.Context, params contracts.Params) (contracts.StockSelector, error) {
	if h.Role != contracts.RoleSelector {
		return nil, fmt.Errorf("strategy %d has role %s, not %s", h.StrategyID, h.Role, contracts.RoleSelector)
	}
	var impl contracts.StockSelector
	var name string
	err := h.invoke(ctx, "New", h.limits.InvokeTimeout, func() error {
		impl = h.ctorSelector(params.Clone())
		if impl == nil {
			return errors.New("constructor returned nil")
		}
		name = impl.Name()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &guardedSelector{h: h, impl: impl, name: name}, nil
}

// Entry instantiates the loaded entry strategy with run-specific params.
func (h *Handle) Entry(ctx context.Context, params contracts.Params) (contracts.EntryStrategy, error) {
	if h.Role != contracts.RoleEntry {
		return nil, fmt.Errorf("strategy %d has role %s, not %s", h.StrategyID, h.Role, contracts.RoleEntry)
	}
	var impl contracts.EntryStrategy
	var name string
	err := h.invoke(ctx, "New", h.limits.InvokeTimeout, func() error {
		impl = h.ctorEntry(params.Clone())
		if impl == nil {
			return errors.New("constructor returned nil")
		}
		name = impl.Name()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &guardedEntry{h: h, impl: impl, name: name}, nil
}

// Exit instantiates the loaded exit strategy with run-specific params.
// Priority, reason and trigger are read once at instantiation so the day
// loop can consult them without re-entering the interpreter.
func (h *Handle) Exit(ctx context.Context, params contracts.Params) (contracts.ExitStrategy, error) {
	if h.Role != contracts.RoleExit {
		return nil, fmt.Errorf("strategy %d has role %s, not %s", h.StrategyID, h.Role, contracts.RoleExit)
	}
	g := &guardedExit{h: h}
	err := h.invoke(ctx, "New", h.limits.InvokeTimeout, func() error {
		impl := h.ctorExit(params.Clone())
		if impl == nil {
			return errors.New("constructor returned nil")
		}
		g.impl = impl
		g.name = impl.Name()
		g.priority = impl.Priority()
		g.reason = impl.Reason()
		g.trigger = impl.Trigger()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// invoke runs fn under the watchdog with exclusive interpreter access.
// On timeout the goroutine is abandoned: there is no way to preempt it,
// so the handle is poisoned and the interpreter dropped with it.
func (h *Handle) invoke(ctx context.Context, method string, limit time.Duration, fn func() error) error {
	if h.poisoned.Load() {
		return ErrHandlePoisoned
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			execErr := &contracts.StrategyExecutionError{StrategyID: h.StrategyID, Method: method, Err: err}
			h.audit.Record(ctx, contracts.AuditExecutionError, h.StrategyID, h.CodeHash, execErr.Error())
			return execErr
		}
		return nil
	case <-timer.C:
		h.poisoned.Store(true)
		viol := &contracts.SandboxViolation{
			StrategyID: h.StrategyID,
			Method:     method,
			Limit:      fmt.Sprintf("wall_clock %s", limit),
			Elapsed:    time.Since(start),
		}
		h.audit.Record(ctx, contracts.AuditSandboxViolation, h.StrategyID, h.CodeHash, viol.Error())
		h.log.WithFields(map[string]interface{}{
			"strategy": h.Name,
			"method":   method,
			"limit":    limit.String(),
		}).Warn("sandbox watchdog fired, handle poisoned")
		return viol
	}
}

// capSignals enforces the result-size budget.
func (h *Handle) capSignals(method string, n int) error {
	if n <= h.limits.MaxSignals {
		return nil
	}
	viol := &contracts.SandboxViolation{
		StrategyID: h.StrategyID,
		Method:     method,
		Limit:      fmt.Sprintf("max_signals %d", h.limits.MaxSignals),
	}
	h.audit.Record(context.Background(), contracts.AuditSandboxViolation, h.StrategyID, h.CodeHash, viol.Error())
	return viol
}

// -----------------------------------------------------------------------------
// Guarded instances
// -----------------------------------------------------------------------------

type guardedSelector struct {
	h    *Handle
	impl contracts.StockSelector
	name string
}

func (g *guardedSelector) Name() string { return g.name }

func (g *guardedSelector) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	var out []string
	err := g.h.invoke(context.Background(), "Select", g.h.limits.InvokeTimeout, func() error {
		res, err := g.impl.Select(date, data)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := g.h.capSignals("Select", len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

type guardedEntry struct {
	h    *Handle
	impl contracts.EntryStrategy
	name string
}

func (g *guardedEntry) Name() string { return g.name }

func (g *guardedEntry) EntrySignals(candidates []string, data *contracts.MarketData, date time.Time) (map[string]float64, error) {
	var out map[string]float64
	err := g.h.invoke(context.Background(), "EntrySignals", g.h.limits.InvokeTimeout, func() error {
		res, err := g.impl.EntrySignals(candidates, data, date)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := g.h.capSignals("EntrySignals", len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

type guardedExit struct {
	h        *Handle
	impl     contracts.ExitStrategy
	name     string
	priority int
	reason   contracts.ExitReason
	trigger  contracts.ExitTrigger
}

func (g *guardedExit) Name() string                   { return g.name }
func (g *guardedExit) Priority() int                  { return g.priority }
func (g *guardedExit) Reason() contracts.ExitReason   { return g.reason }
func (g *guardedExit) Trigger() contracts.ExitTrigger { return g.trigger }

func (g *guardedExit) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	err := g.h.invoke(context.Background(), "ExitSignals", g.h.limits.InvokeTimeout, func() error {
		res, err := g.impl.ExitSignals(positions, data, date)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := g.h.capSignals("ExitSignals", len(out)); err != nil {
		return nil, err
	}
	return out, nil
}
