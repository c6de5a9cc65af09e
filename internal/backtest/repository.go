package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/pkg/database"
)

// =============================================================================
// Persistence
// Price panels are read from daily_prices; completed runs land in
// backtest_runs with their trade ledgers in backtest_trades.
// =============================================================================

const priceSchema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	code       VARCHAR(16)      NOT NULL,
	date       DATE             NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	volume     BIGINT           NOT NULL DEFAULT 0,
	PRIMARY KEY (code, date)
);
`

const runSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id           UUID PRIMARY KEY,
	request      JSONB       NOT NULL,
	status       VARCHAR(16) NOT NULL,
	progress     DOUBLE PRECISION NOT NULL DEFAULT 0,
	metrics      JSONB,
	equity_curve JSONB,
	faults       JSONB,
	error        TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS backtest_trades (
	run_id        UUID        NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
	seq           INT         NOT NULL,
	side          VARCHAR(4)  NOT NULL,
	code          VARCHAR(16) NOT NULL,
	date          DATE        NOT NULL,
	price         DOUBLE PRECISION NOT NULL,
	shares        BIGINT      NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	commission    DOUBLE PRECISION NOT NULL DEFAULT 0,
	stamp_duty    DOUBLE PRECISION NOT NULL DEFAULT 0,
	entry_reason  VARCHAR(16) NOT NULL DEFAULT '',
	exit_reason   VARCHAR(16) NOT NULL DEFAULT '',
	exit_trigger  VARCHAR(32) NOT NULL DEFAULT '',
	exit_strategy VARCHAR(64) NOT NULL DEFAULT '',
	pnl           DOUBLE PRECISION NOT NULL DEFAULT 0,
	return_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs (created_at DESC);
`

// Repository is the Postgres persistence for prices and runs.
type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, schema := range []string{priceSchema, runSchema} {
		if _, err := r.db.Pool.Exec(ctx, schema); err != nil {
			return fmt.Errorf("creating backtest schema: %w", err)
		}
	}
	return nil
}

// Panel loads the price panel for the codes over [start, end]. An empty
// code list loads every symbol with data in the range.
func (r *Repository) Panel(ctx context.Context, codes []string, start, end time.Time) (*contracts.MarketData, error) {
	query := `
		SELECT code, date, open, high, low, close, volume
		FROM daily_prices
		WHERE date BETWEEN $1 AND $2`
	args := []any{start, end}
	if len(codes) > 0 {
		query += ` AND code = ANY($3)`
		args = append(args, codes)
	}
	query += ` ORDER BY code, date`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading price panel: %w", err)
	}
	defer rows.Close()

	series := make(map[string][]contracts.Bar)
	for rows.Next() {
		var code string
		var b contracts.Bar
		if err := rows.Scan(&code, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scanning price row: %w", err)
		}
		b.Date = contracts.Day(b.Date.Year(), b.Date.Month(), b.Date.Day())
		series[code] = append(series[code], b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts.NewMarketData(series), nil
}

// UpsertBars writes one symbol's bars, replacing overlapping dates.
func (r *Repository) UpsertBars(ctx context.Context, code string, bars []contracts.Bar) error {
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO daily_prices (code, date, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code, date) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume`,
			code, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting bars for %s: %w", code, err)
		}
	}
	return nil
}

// CreateRun records a queued run.
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("encoding run request: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO backtest_runs (id, request, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, req, run.Status, run.Progress, run.CreatedAt)
	return err
}

// UpdateRun persists status transitions and, on completion, the result.
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	var metrics, curve, faults []byte
	if run.Result != nil {
		var err error
		if metrics, err = json.Marshal(run.Result.Metrics); err != nil {
			return err
		}
		if curve, err = json.Marshal(run.Result.EquityCurve); err != nil {
			return err
		}
		if faults, err = json.Marshal(run.Result.Faults); err != nil {
			return err
		}
	}
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE backtest_runs
		SET status = $2, progress = $3, metrics = $4, equity_curve = $5,
		    faults = $6, error = $7, started_at = $8, finished_at = $9
		WHERE id = $1`,
		run.ID, run.Status, run.Progress, metrics, curve, faults,
		run.Error, nullTime(run.StartedAt), nullTime(run.FinishedAt))
	if err != nil {
		return err
	}
	if run.Result != nil && run.Status == RunCompleted {
		return r.insertTrades(ctx, run.ID, run.Result.Trades)
	}
	return nil
}

func (r *Repository) insertTrades(ctx context.Context, runID string, trades []contracts.Trade) error {
	batch := &pgx.Batch{}
	for i, tr := range trades {
		batch.Queue(`
			INSERT INTO backtest_trades
				(run_id, seq, side, code, date, price, shares, amount, commission,
				 stamp_duty, entry_reason, exit_reason, exit_trigger, exit_strategy, pnl, return_pct)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (run_id, seq) DO NOTHING`,
			runID, i, tr.Side, tr.Code, tr.Date, tr.Price, tr.Shares, tr.Amount,
			tr.Commission, tr.StampDuty, tr.EntryReason, tr.ExitReason,
			tr.ExitTrigger, tr.ExitStrategy, tr.PnL, tr.ReturnPct)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting trades for run %s: %w", runID, err)
		}
	}
	return nil
}

// Trades reads back a persisted ledger in execution order.
func (r *Repository) Trades(ctx context.Context, runID string) ([]contracts.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT side, code, date, price, shares, amount, commission, stamp_duty,
		       entry_reason, exit_reason, exit_trigger, exit_strategy, pnl, return_pct
		FROM backtest_trades WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.Trade
	for rows.Next() {
		var tr contracts.Trade
		if err := rows.Scan(&tr.Side, &tr.Code, &tr.Date, &tr.Price, &tr.Shares,
			&tr.Amount, &tr.Commission, &tr.StampDuty, &tr.EntryReason,
			&tr.ExitReason, &tr.ExitTrigger, &tr.ExitStrategy, &tr.PnL, &tr.ReturnPct); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
