package contracts

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Error Taxonomy
// Validation and tamper errors never reach the simulation loop. Sandbox
// and execution errors abort the run at selector granularity and are
// isolated per symbol at entry/exit granularity.
// =============================================================================

// ValidationKind classifies why static validation failed.
type ValidationKind string

const (
	ValidationSyntax     ValidationKind = "syntax"
	ValidationCapability ValidationKind = "capability"
	ValidationStructural ValidationKind = "structural"
)

// StrategyValidationError reports a failed static validation. The strategy
// is never executed.
type StrategyValidationError struct {
	Kind     ValidationKind
	Strategy string
	Problems []string
}

func (e *StrategyValidationError) Error() string {
	return fmt.Sprintf("strategy %q failed %s validation: %s",
		e.Strategy, e.Kind, strings.Join(e.Problems, "; "))
}

// StrategyTamperedError reports a stored code_hash that does not match
// SHA-256 of the stored code. Treated as tampering, never re-hashed.
type StrategyTamperedError struct {
	StrategyID int64
	WantHash   string
	GotHash    string
}

func (e *StrategyTamperedError) Error() string {
	return fmt.Sprintf("strategy %d code hash mismatch: stored %s, computed %s",
		e.StrategyID, e.WantHash, e.GotHash)
}

// SandboxViolation reports a resource limit exceeded while running
// strategy code. Distinct from an error raised by the strategy's own logic.
type SandboxViolation struct {
	StrategyID int64
	Method     string
	Limit      string
	Elapsed    time.Duration
}

func (e *SandboxViolation) Error() string {
	return fmt.Sprintf("sandbox violation in strategy %d.%s: %s exceeded after %s",
		e.StrategyID, e.Method, e.Limit, e.Elapsed)
}

// StrategyExecutionError wraps an error raised by otherwise-valid strategy
// logic at runtime.
type StrategyExecutionError struct {
	StrategyID int64
	Method     string
	Err        error
}

func (e *StrategyExecutionError) Error() string {
	return fmt.Sprintf("strategy %d.%s failed: %v", e.StrategyID, e.Method, e.Err)
}

func (e *StrategyExecutionError) Unwrap() error { return e.Err }

// CombinationInvalidError reports an incomplete or inconsistent strategy
// combination. Rejected before any simulation starts.
type CombinationInvalidError struct {
	Problems []string
}

func (e *CombinationInvalidError) Error() string {
	return "invalid strategy combination: " + strings.Join(e.Problems, "; ")
}

// InsufficientCashError is a Portfolio invariant failure on buy. Fatal to
// the current day's action, never to the whole run.
type InsufficientCashError struct {
	Code string
	Need float64
	Have float64
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash for %s: need %.2f, have %.2f", e.Code, e.Need, e.Have)
}

// NoPositionError is a Portfolio invariant failure on sell.
type NoPositionError struct {
	Code string
}

func (e *NoPositionError) Error() string {
	return fmt.Sprintf("no position to sell: %s", e.Code)
}
