package jobs

import (
	"context"
	"fmt"

	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// RevalidateJob sweeps strategies left in pending and runs static
// validation on them. Code updates reset records to pending; this sweep
// is what returns them to the runnable pool without operator action.
type RevalidateJob struct {
	store    strategy.Store
	auditLog *audit.Log
	schedule string
	logger   *logger.Logger
}

func NewRevalidateJob(store strategy.Store, auditLog *audit.Log, schedule string, log *logger.Logger) *RevalidateJob {
	return &RevalidateJob{
		store:    store,
		auditLog: auditLog,
		schedule: schedule,
		logger:   log,
	}
}

func (j *RevalidateJob) Name() string     { return "strategy_revalidate" }
func (j *RevalidateJob) Schedule() string { return j.schedule }

func (j *RevalidateJob) Run(ctx context.Context) error {
	pending, err := j.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending strategies: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	passed, failed := 0, 0
	for _, rec := range pending {
		if err := rec.VerifyHash(); err != nil {
			// Tampered code never gets validated back in.
			j.logger.WithFields(map[string]interface{}{
				"strategy": rec.Name,
				"error":    err.Error(),
			}).Error("Stored code failed hash verification")
			j.auditLog.Record(ctx, contracts.AuditSandboxViolation, rec.ID, rec.CodeHash, "hash mismatch on revalidation")
			continue
		}

		res := sandbox.Validate(rec.Code, rec.ClassName, rec.Role)
		status := strategy.ValidationPassed
		if !res.Valid {
			status = strategy.ValidationFailed
		}
		if err := j.store.UpdateValidation(ctx, rec.ID, status, res.Errors, res.RiskLevel); err != nil {
			return fmt.Errorf("failed to update validation for %s: %w", rec.Name, err)
		}
		j.auditLog.Record(ctx, contracts.AuditValidationResult, rec.ID, rec.CodeHash, string(status))

		if res.Valid {
			passed++
		} else {
			failed++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"pending": len(pending),
		"passed":  passed,
		"failed":  failed,
	}).Info("Pending strategies revalidated")

	return nil
}
