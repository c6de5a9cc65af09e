package handlers

import (
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/backtest"
	"github.com/sujun1972/stock-analysis-go/internal/strategies"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
	"github.com/sujun1972/stock-analysis-go/pkg/redis"
)

// Handler serves the strategy catalog, combination checks, backtest runs
// and the audit trail. One instance is shared by every route.
type Handler struct {
	store    strategy.Store
	registry *strategies.Registry
	runs     *backtest.RunManager
	audit    *audit.Log
	cache    *redis.Cache // nil when Redis is disabled
	cacheTTL time.Duration
	defaults backtest.Request
	logger   *logger.Logger
}

// Defaults carries per-run fallbacks applied to backtest requests that
// leave capital or friction fields unset.
type Defaults struct {
	InitialCapital float64
	Frictions      backtest.Frictions
}

func New(
	store strategy.Store,
	registry *strategies.Registry,
	runs *backtest.RunManager,
	auditLog *audit.Log,
	cache *redis.Cache,
	cacheTTL time.Duration,
	defaults Defaults,
	log *logger.Logger,
) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		runs:     runs,
		audit:    auditLog,
		cache:    cache,
		cacheTTL: cacheTTL,
		defaults: backtest.Request{
			InitialCapital: defaults.InitialCapital,
			Frictions:      defaults.Frictions,
		},
		logger: log,
	}
}
