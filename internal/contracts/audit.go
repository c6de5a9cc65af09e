package contracts

import "time"

// AuditEventType classifies append-only audit events.
type AuditEventType string

const (
	AuditStrategyLoad     AuditEventType = "strategy_load"
	AuditValidationResult AuditEventType = "validation_result"
	AuditSandboxViolation AuditEventType = "sandbox_violation"
	AuditExecutionError   AuditEventType = "execution_error"
)

// AuditEvent is one entry of the sandbox audit trail. Events are append-only
// and queryable by strategy and time range.
type AuditEvent struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       AuditEventType `json:"type"`
	StrategyID int64          `json:"strategy_id"`
	CodeHash   string         `json:"code_hash"`
	Detail     string         `json:"detail"`
}
