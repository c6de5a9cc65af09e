package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// AuditPruner deletes audit events older than a cutoff.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob trims the persisted audit trail to the configured window.
type RetentionJob struct {
	pruner   AuditPruner
	days     int
	schedule string
	logger   *logger.Logger
}

func NewRetentionJob(pruner AuditPruner, days int, schedule string, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		pruner:   pruner,
		days:     days,
		schedule: schedule,
		logger:   log,
	}
}

func (j *RetentionJob) Name() string     { return "audit_retention" }
func (j *RetentionJob) Schedule() string { return j.schedule }

func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.days)

	deleted, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune audit events: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff.Format("2006-01-02"),
		"deleted": deleted,
	}).Info("Audit retention sweep completed")

	return nil
}
