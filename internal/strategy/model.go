package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// ErrNotFound is returned when a strategy id or name does not exist.
var ErrNotFound = errors.New("strategy not found")

// ErrDuplicateName is returned by Create when the slug is already taken.
var ErrDuplicateName = errors.New("strategy name already exists")

// SourceType records where a strategy's code came from.
type SourceType string

const (
	SourceBuiltin SourceType = "builtin"
	SourceAI      SourceType = "ai"
	SourceCustom  SourceType = "custom"
)

// ValidationStatus is the trust state of a strategy version.
type ValidationStatus string

const (
	ValidationPending    ValidationStatus = "pending"
	ValidationPassed     ValidationStatus = "passed"
	ValidationFailed     ValidationStatus = "failed"
	ValidationValidating ValidationStatus = "validating"
)

// RiskLevel is assigned by the validator's capability scan.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "safe"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Strategy is the persisted, content-addressed unit of strategy logic.
// CodeHash must always equal SHA-256(Code); a stored mismatch is treated
// as tampering and blocks execution.
type Strategy struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"` // unique slug
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`

	Code      string `json:"code"`
	CodeHash  string `json:"code_hash"`
	ClassName string `json:"class_name"`

	SourceType SourceType     `json:"source_type"`
	Category   string         `json:"category,omitempty"` // momentum, reversal, factor, ...
	Role       contracts.Role `json:"role"`
	Tags       []string       `json:"tags,omitempty"`

	DefaultParams contracts.Params      `json:"default_params"`
	ParamSchema   []contracts.ParamSpec `json:"param_schema,omitempty"`

	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationErrors []string         `json:"validation_errors,omitempty"`
	RiskLevel        RiskLevel        `json:"risk_level"`

	Version          int    `json:"version"`
	ParentStrategyID *int64 `json:"parent_strategy_id,omitempty"`
	UsageCount       int64  `json:"usage_count"`
	BacktestCount    int64  `json:"backtest_count"`
	AvgReturn        float64 `json:"avg_return"`
	WinRate          float64 `json:"win_rate"`

	IsEnabled bool      `json:"is_enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HashCode computes the canonical SHA-256 hex digest of strategy source.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyHash fails closed when the stored hash does not match the stored
// code. The hash is never silently recomputed.
func (s *Strategy) VerifyHash() error {
	got := HashCode(s.Code)
	if got != s.CodeHash {
		return &contracts.StrategyTamperedError{
			StrategyID: s.ID,
			WantHash:   s.CodeHash,
			GotHash:    got,
		}
	}
	return nil
}

// Runnable reports whether the executor may instantiate this strategy.
func (s *Strategy) Runnable() bool {
	return s.IsEnabled && s.ValidationStatus == ValidationPassed
}
