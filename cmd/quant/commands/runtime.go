package commands

import (
	"context"
	"fmt"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/backtest"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategies"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/config"
	"github.com/sujun1972/stock-analysis-go/pkg/database"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
	"github.com/sujun1972/stock-analysis-go/pkg/redis"
)

// runtime wires the full engine stack once per command invocation.
type runtime struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB

	store        strategy.Store
	auditLog     *audit.Log
	auditRepo    *audit.Repository
	backtestRepo *backtest.Repository
	registry     *strategies.Registry
	cache        *sandbox.Cache
	engine       *backtest.Engine
	runs         *backtest.RunManager
	redis        *redis.Client
}

// newRuntime loads config, connects to Postgres and assembles the
// engine. Every command that touches strategies or runs goes through
// this so schema setup and wiring stay in one place.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	strategyRepo := strategy.NewRepository(db.Pool)
	auditRepo := audit.NewRepository(db.Pool)
	backtestRepo := backtest.NewRepository(db)
	for name, ensure := range map[string]func(context.Context) error{
		"strategies": strategyRepo.EnsureSchema,
		"audit":      auditRepo.EnsureSchema,
		"backtest":   backtestRepo.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure %s schema: %w", name, err)
		}
	}

	auditLog := audit.New(log, cfg.Sandbox.AuditBuffer).WithSink(auditRepo)

	executor := sandbox.NewExecutor(sandbox.Limits{
		LoadTimeout:   cfg.Sandbox.LoadTimeout,
		InvokeTimeout: cfg.Sandbox.InvokeTimeout,
		MaxSignals:    cfg.Sandbox.MaxSignals,
	}, log, auditLog)
	cache := sandbox.NewCache(executor, strategyRepo, log)

	registry := strategies.NewRegistry()
	composer := backtest.NewComposer(registry, strategyRepo, cache)
	engine := backtest.NewEngine(composer, log)
	runs := backtest.NewRunManager(engine, backtestRepo, backtestRepo, cfg.Backtest.MaxConcurrent, log)

	rds, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without response cache")
		rds = &redis.Client{}
	}

	return &runtime{
		cfg:          cfg,
		log:          log,
		db:           db,
		store:        strategyRepo,
		auditLog:     auditLog,
		auditRepo:    auditRepo,
		backtestRepo: backtestRepo,
		registry:     registry,
		cache:        cache,
		engine:       engine,
		runs:         runs,
		redis:        rds,
	}, nil
}

func (r *runtime) Close() {
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.log.WithError(err).Warn("Failed to close Redis client")
		}
	}
	r.db.Close()
}

// defaultFrictions translates configured trading costs into run frictions.
func (r *runtime) defaultFrictions() backtest.Frictions {
	return backtest.Frictions{
		Commission: r.cfg.Backtest.Commission,
		StampDuty:  r.cfg.Backtest.StampDuty,
		Slippage:   r.cfg.Backtest.Slippage,
	}
}

// validateRecord runs static validation the way the seeding and
// revalidation paths expect it.
func validateRecord(rec *strategy.Strategy) (strategy.ValidationStatus, []string, strategy.RiskLevel) {
	res := sandbox.Validate(rec.Code, rec.ClassName, rec.Role)
	if !res.Valid {
		return strategy.ValidationFailed, res.Errors, res.RiskLevel
	}
	return strategy.ValidationPassed, nil, res.RiskLevel
}
