package strategy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

// Every builtin seed must carry source that passes static validation
// cleanly. A builtin that fails here would vanish from the catalog.
func TestBuiltinSourcesValidate(t *testing.T) {
	seeds := strategy.Builtins()
	require.NotEmpty(t, seeds)

	names := make(map[string]bool, len(seeds))
	for _, rec := range seeds {
		rec := rec
		t.Run(rec.Name, func(t *testing.T) {
			require.False(t, names[rec.Name], "duplicate builtin slug")
			names[rec.Name] = true

			res := sandbox.Validate(rec.Code, rec.ClassName, rec.Role)
			require.True(t, res.Valid, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
			assert.Contains(t, []strategy.RiskLevel{strategy.RiskSafe, strategy.RiskLow}, res.RiskLevel)
		})
	}
}

func TestBuiltinsDeclareDefaultsForEverySchemaEntry(t *testing.T) {
	for _, rec := range strategy.Builtins() {
		for _, spec := range rec.ParamSchema {
			_, ok := rec.DefaultParams[spec.Name]
			assert.True(t, ok, "%s: schema param %q has no default", rec.Name, spec.Name)
		}
	}
}

func TestSeedBuiltins(t *testing.T) {
	store := strategy.NewMemStore()
	validate := func(rec *strategy.Strategy) (strategy.ValidationStatus, []string, strategy.RiskLevel) {
		res := sandbox.Validate(rec.Code, rec.ClassName, rec.Role)
		if !res.Valid {
			return strategy.ValidationFailed, res.Errors, res.RiskLevel
		}
		return strategy.ValidationPassed, nil, res.RiskLevel
	}

	created, err := strategy.SeedBuiltins(context.Background(), store, validate)
	require.NoError(t, err)
	assert.Equal(t, len(strategy.Builtins()), created)

	// Seeding again is a no-op.
	again, err := strategy.SeedBuiltins(context.Background(), store, validate)
	require.NoError(t, err)
	assert.Zero(t, again)

	// Everything landed validated and runnable.
	for _, role := range []contracts.Role{contracts.RoleSelector, contracts.RoleEntry, contracts.RoleExit} {
		records, err := store.ListByRole(context.Background(), role, true)
		require.NoError(t, err)
		require.NotEmpty(t, records)
		for _, rec := range records {
			assert.True(t, rec.Runnable(), "%s should be runnable after seeding", rec.Name)
			assert.Equal(t, strategy.SourceBuiltin, rec.SourceType)
		}
	}
}
