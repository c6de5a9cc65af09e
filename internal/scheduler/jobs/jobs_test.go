package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

const validSelectorSource = `package strategy

import (
	"time"

	"quant/contracts"
)

type Pinned struct{}

func (s *Pinned) Name() string { return "pinned" }

func (s *Pinned) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return []string{"600100"}, nil
}

func New(params contracts.Params) contracts.StockSelector { return &Pinned{} }
`

func TestRevalidateJobPromotesPendingStrategies(t *testing.T) {
	ctx := context.Background()
	store := strategy.NewMemStore()

	good := &strategy.Strategy{
		Name: "good", Code: validSelectorSource, ClassName: "Pinned",
		Role: contracts.RoleSelector,
	}
	bad := &strategy.Strategy{
		Name: "bad", Code: "package strategy\n\nimport \"os\"\n\nvar _ = os.Getenv\n",
		ClassName: "Nope", Role: contracts.RoleSelector,
	}
	require.NoError(t, store.Create(ctx, good))
	require.NoError(t, store.Create(ctx, bad))

	auditLog := audit.New(logger.Nop(), 100)
	job := NewRevalidateJob(store, auditLog, "@hourly", logger.Nop())
	require.Equal(t, "strategy_revalidate", job.Name())
	require.NoError(t, job.Run(ctx))

	got, err := store.Get(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, strategy.ValidationPassed, got.ValidationStatus)
	assert.True(t, got.Runnable())

	got, err = store.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, strategy.ValidationFailed, got.ValidationStatus)
	assert.NotEmpty(t, got.ValidationErrors)

	// Nothing left pending, so a second sweep is a no-op.
	require.NoError(t, job.Run(ctx))
	assert.NotZero(t, auditLog.Len())
}

func TestRevalidateJobSkipsTamperedCode(t *testing.T) {
	ctx := context.Background()
	store := strategy.NewMemStore()
	rec := &strategy.Strategy{
		Name: "shifty", Code: validSelectorSource, ClassName: "Pinned",
		Role: contracts.RoleSelector,
	}
	require.NoError(t, store.Create(ctx, rec))
	store.TamperCode(rec.ID, "package strategy // edited\n")

	auditLog := audit.New(logger.Nop(), 100)
	job := NewRevalidateJob(store, auditLog, "@hourly", logger.Nop())
	require.NoError(t, job.Run(ctx))

	// Tampered records stay pending and unrunnable.
	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, strategy.ValidationPending, got.ValidationStatus)

	events := auditLog.Query(rec.ID, time.Time{}, time.Now().Add(time.Minute))
	require.NotEmpty(t, events)
	assert.Equal(t, contracts.AuditSandboxViolation, events[0].Type)
}

type fakePruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (p *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.deleted, p.err
}

func TestRetentionJobPrunesOldEvents(t *testing.T) {
	pruner := &fakePruner{deleted: 42}
	job := NewRetentionJob(pruner, 90, "0 0 3 * * *", logger.Nop())
	require.Equal(t, "audit_retention", job.Name())
	require.Equal(t, "0 0 3 * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))

	wantCutoff := time.Now().AddDate(0, 0, -90)
	assert.WithinDuration(t, wantCutoff, pruner.cutoff, time.Minute)
}

func TestRetentionJobPropagatesErrors(t *testing.T) {
	job := NewRetentionJob(&fakePruner{err: assert.AnError}, 30, "@daily", logger.Nop())
	assert.Error(t, job.Run(context.Background()))
}
