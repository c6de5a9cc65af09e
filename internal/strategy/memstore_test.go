package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

func newRecord(name string) *Strategy {
	return &Strategy{
		Name:      name,
		Code:      "package strategy\n",
		ClassName: "X",
		Role:      contracts.RoleSelector,
	}
}

func TestMemStoreCreateAssignsIdentity(t *testing.T) {
	store := NewMemStore()
	rec := newRecord("alpha")
	require.NoError(t, store.Create(context.Background(), rec))

	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, ValidationPending, rec.ValidationStatus)
	assert.Equal(t, RiskHigh, rec.RiskLevel)
	assert.Equal(t, HashCode(rec.Code), rec.CodeHash)
	assert.False(t, rec.Runnable(), "pending records must not be runnable")
}

func TestMemStoreRejectsDuplicateName(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Create(context.Background(), newRecord("alpha")))
	assert.ErrorIs(t, store.Create(context.Background(), newRecord("alpha")), ErrDuplicateName)
}

func TestMemStoreUpdateCodeResetsTrust(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	rec := newRecord("alpha")
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.UpdateValidation(ctx, rec.ID, ValidationPassed, nil, RiskSafe))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Runnable())

	require.NoError(t, store.UpdateCode(ctx, rec.ID, "package strategy\n\n// v2\n"))

	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, ValidationPending, got.ValidationStatus)
	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.False(t, got.Runnable())
	assert.NoError(t, got.VerifyHash())
}

func TestMemStoreTamperDetection(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	rec := newRecord("alpha")
	require.NoError(t, store.Create(ctx, rec))

	store.TamperCode(rec.ID, "package strategy // edited behind the store's back\n")

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Error(t, got.VerifyHash())
}

func TestMemStoreListPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	a, b := newRecord("alpha"), newRecord("beta")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	require.NoError(t, store.UpdateValidation(ctx, a.ID, ValidationPassed, nil, RiskSafe))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "beta", pending[0].Name)
}

func TestMemStoreRecordBacktest(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	rec := newRecord("alpha")
	require.NoError(t, store.Create(ctx, rec))

	require.NoError(t, store.RecordBacktest(ctx, rec.ID, 0.10, true))
	require.NoError(t, store.RecordBacktest(ctx, rec.ID, -0.04, false))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.BacktestCount)
	assert.InDelta(t, 0.03, got.AvgReturn, 1e-9)
	assert.InDelta(t, 0.5, got.WinRate, 1e-9)
}
