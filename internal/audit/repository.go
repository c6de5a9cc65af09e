package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// Repository is the pgx-backed audit sink.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the audit_events table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          UUID PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL,
			event_type  TEXT NOT NULL,
			strategy_id BIGINT NOT NULL,
			code_hash   TEXT NOT NULL,
			detail      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_strategy ON audit_events(strategy_id, ts);
	`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts one event. Events are never updated or deleted here;
// retention is handled by the maintenance scheduler.
func (r *Repository) Append(ctx context.Context, e contracts.AuditEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (id, ts, event_type, strategy_id, code_hash, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Timestamp, e.Type, e.StrategyID, e.CodeHash, e.Detail)
	return err
}

// QueryByStrategy returns events for a strategy within [from, to].
func (r *Repository) QueryByStrategy(ctx context.Context, strategyID int64, from, to time.Time) ([]contracts.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ts, event_type, strategy_id, code_hash, detail
		FROM audit_events
		WHERE strategy_id = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts ASC
	`, strategyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.AuditEvent
	for rows.Next() {
		var e contracts.AuditEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.StrategyID, &e.CodeHash, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryRecent returns the newest n events, newest first.
func (r *Repository) QueryRecent(ctx context.Context, n int) ([]contracts.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ts, event_type, strategy_id, code_hash, detail
		FROM audit_events
		ORDER BY ts DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.AuditEvent
	for rows.Next() {
		var e contracts.AuditEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.StrategyID, &e.CodeHash, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes events before the cutoff and reports how many
// rows were dropped.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
