package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// Repository is the pgx-backed Strategy record store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new strategy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL UNIQUE,
	display_name       TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	code               TEXT NOT NULL,
	code_hash          TEXT NOT NULL,
	class_name         TEXT NOT NULL,
	source_type        TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	role               TEXT NOT NULL,
	tags               JSONB NOT NULL DEFAULT '[]',
	default_params     JSONB NOT NULL DEFAULT '{}',
	param_schema       JSONB NOT NULL DEFAULT '[]',
	validation_status  TEXT NOT NULL DEFAULT 'pending',
	validation_errors  JSONB NOT NULL DEFAULT '[]',
	risk_level         TEXT NOT NULL DEFAULT 'high',
	version            INT NOT NULL DEFAULT 1,
	parent_strategy_id BIGINT REFERENCES strategies(id),
	usage_count        BIGINT NOT NULL DEFAULT 0,
	backtest_count     BIGINT NOT NULL DEFAULT 0,
	avg_return         DOUBLE PRECISION NOT NULL DEFAULT 0,
	win_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_strategies_role ON strategies(role, is_enabled);
`

// EnsureSchema creates the strategies table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure strategies schema: %w", err)
	}
	return nil
}

const strategyColumns = `
	id, name, display_name, description, code, code_hash, class_name,
	source_type, category, role, tags, default_params, param_schema,
	validation_status, validation_errors, risk_level, version,
	parent_strategy_id, usage_count, backtest_count, avg_return, win_rate,
	is_enabled, created_at, updated_at`

func scanStrategy(row pgx.Row) (*Strategy, error) {
	var s Strategy
	var tags, params, schema, verrs []byte
	err := row.Scan(
		&s.ID, &s.Name, &s.DisplayName, &s.Description, &s.Code, &s.CodeHash, &s.ClassName,
		&s.SourceType, &s.Category, &s.Role, &tags, &params, &schema,
		&s.ValidationStatus, &verrs, &s.RiskLevel, &s.Version,
		&s.ParentStrategyID, &s.UsageCount, &s.BacktestCount, &s.AvgReturn, &s.WinRate,
		&s.IsEnabled, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(tags, &s.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(params, &s.DefaultParams); err != nil {
		return nil, fmt.Errorf("decode default_params: %w", err)
	}
	if err := json.Unmarshal(schema, &s.ParamSchema); err != nil {
		return nil, fmt.Errorf("decode param_schema: %w", err)
	}
	if err := json.Unmarshal(verrs, &s.ValidationErrors); err != nil {
		return nil, fmt.Errorf("decode validation_errors: %w", err)
	}
	return &s, nil
}

// Get retrieves a strategy by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`
	return scanStrategy(r.pool.QueryRow(ctx, query, id))
}

// GetByName retrieves a strategy by its unique slug.
func (r *Repository) GetByName(ctx context.Context, name string) (*Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE name = $1`
	return scanStrategy(r.pool.QueryRow(ctx, query, name))
}

// ListByRole lists strategies of one role, optionally only enabled ones.
func (r *Repository) ListByRole(ctx context.Context, role contracts.Role, enabledOnly bool) ([]*Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE role = $1`
	if enabledOnly {
		query += ` AND is_enabled`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

// ListPending lists strategies awaiting validation, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]*Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies
		WHERE validation_status = 'pending' ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Strategy, error) {
	var out []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a new strategy record. The code hash is computed here;
// callers never supply it.
func (r *Repository) Create(ctx context.Context, s *Strategy) error {
	s.CodeHash = HashCode(s.Code)
	if s.Version == 0 {
		s.Version = 1
	}
	if s.ValidationStatus == "" {
		s.ValidationStatus = ValidationPending
	}
	if s.RiskLevel == "" {
		s.RiskLevel = RiskHigh
	}
	if s.DefaultParams == nil {
		s.DefaultParams = contracts.Params{}
	}

	tags, _ := json.Marshal(s.Tags)
	params, _ := json.Marshal(s.DefaultParams)
	schema, _ := json.Marshal(s.ParamSchema)
	verrs, _ := json.Marshal(s.ValidationErrors)
	if s.Tags == nil {
		tags = []byte(`[]`)
	}
	if s.ParamSchema == nil {
		schema = []byte(`[]`)
	}
	if s.ValidationErrors == nil {
		verrs = []byte(`[]`)
	}

	query := `
		INSERT INTO strategies (
			name, display_name, description, code, code_hash, class_name,
			source_type, category, role, tags, default_params, param_schema,
			validation_status, validation_errors, risk_level, version,
			parent_strategy_id, is_enabled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,TRUE)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.Name, s.DisplayName, s.Description, s.Code, s.CodeHash, s.ClassName,
		s.SourceType, s.Category, s.Role, tags, params, schema,
		s.ValidationStatus, verrs, s.RiskLevel, s.Version, s.ParentStrategyID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}

// UpdateCode replaces the source of a strategy, bumps its version and
// resets its trust state to pending.
func (r *Repository) UpdateCode(ctx context.Context, id int64, code string) error {
	query := `
		UPDATE strategies
		SET code = $2, code_hash = $3, version = version + 1,
		    validation_status = 'pending', validation_errors = '[]',
		    risk_level = 'high', updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, code, HashCode(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateValidation persists a validator verdict.
func (r *Repository) UpdateValidation(ctx context.Context, id int64, status ValidationStatus, errs []string, risk RiskLevel) error {
	verrs, _ := json.Marshal(errs)
	if errs == nil {
		verrs = []byte(`[]`)
	}
	query := `
		UPDATE strategies
		SET validation_status = $2, validation_errors = $3, risk_level = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, verrs, risk)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled soft-disables or re-enables a strategy. Records referenced by
// historical backtests are never hard-deleted.
func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE strategies SET is_enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps the usage counter after a successful load.
func (r *Repository) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE strategies SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return err
}

// RecordBacktest folds one backtest outcome into the rolling aggregates.
func (r *Repository) RecordBacktest(ctx context.Context, id int64, totalReturn float64, won bool) error {
	query := `
		UPDATE strategies
		SET backtest_count = backtest_count + 1,
		    avg_return = (avg_return * backtest_count + $2) / (backtest_count + 1),
		    win_rate = (win_rate * backtest_count + $3) / (backtest_count + 1)
		WHERE id = $1
	`
	w := 0.0
	if won {
		w = 1.0
	}
	_, err := r.pool.Exec(ctx, query, id, totalReturn, w)
	return err
}
