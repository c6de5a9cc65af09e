package strategy

import (
	"context"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// Store is the Strategy record store. The pgx Repository is the production
// implementation; MemStore backs tests and single-process runs.
type Store interface {
	Get(ctx context.Context, id int64) (*Strategy, error)
	GetByName(ctx context.Context, name string) (*Strategy, error)
	ListByRole(ctx context.Context, role contracts.Role, enabledOnly bool) ([]*Strategy, error)
	ListPending(ctx context.Context) ([]*Strategy, error)

	Create(ctx context.Context, s *Strategy) error
	// UpdateCode replaces the source, recomputes the hash, bumps the
	// version and resets the trust state to pending.
	UpdateCode(ctx context.Context, id int64, code string) error
	UpdateValidation(ctx context.Context, id int64, status ValidationStatus, errs []string, risk RiskLevel) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error

	IncrementUsage(ctx context.Context, id int64) error
	RecordBacktest(ctx context.Context, id int64, totalReturn float64, won bool) error
}
