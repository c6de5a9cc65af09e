package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

// StrategySummary is one catalog entry. Source code is never exposed
// through the list endpoints.
type StrategySummary struct {
	ID            int64                 `json:"id,omitempty"`
	Name          string                `json:"name"`
	DisplayName   string                `json:"display_name,omitempty"`
	Description   string                `json:"description,omitempty"`
	SourceType    strategy.SourceType   `json:"source_type"`
	Category      string                `json:"category,omitempty"`
	RiskLevel     strategy.RiskLevel    `json:"risk_level,omitempty"`
	DefaultParams contracts.Params      `json:"default_params,omitempty"`
	ParamSchema   []contracts.ParamSpec `json:"param_schema,omitempty"`
	UsageCount    int64                 `json:"usage_count"`
	AvgReturn     float64               `json:"avg_return"`
	WinRate       float64               `json:"win_rate"`
}

func (h *Handler) ListSelectors(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, contracts.RoleSelector)
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, contracts.RoleEntry)
}

func (h *Handler) ListExits(w http.ResponseWriter, r *http.Request) {
	h.listByRole(w, r, contracts.RoleExit)
}

// listByRole serves validated, enabled records. Responses are cached in
// Redis for a short TTL since the catalog changes rarely.
func (h *Handler) listByRole(w http.ResponseWriter, r *http.Request, role contracts.Role) {
	ctx := r.Context()
	cacheKey := "strategies:" + string(role)

	if h.cache != nil {
		var cached []StrategySummary
		if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"strategies": cached,
				"count":      len(cached),
			})
			return
		}
	}

	records, err := h.store.ListByRole(ctx, role, true)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list strategies")
		respondError(w, http.StatusInternalServerError, "Failed to list strategies")
		return
	}

	summaries := make([]StrategySummary, 0, len(records))
	for _, rec := range records {
		if rec.ValidationStatus != strategy.ValidationPassed {
			continue
		}
		summaries = append(summaries, StrategySummary{
			ID:            rec.ID,
			Name:          rec.Name,
			DisplayName:   rec.DisplayName,
			Description:   rec.Description,
			SourceType:    rec.SourceType,
			Category:      rec.Category,
			RiskLevel:     rec.RiskLevel,
			DefaultParams: rec.DefaultParams,
			ParamSchema:   rec.ParamSchema,
			UsageCount:    rec.UsageCount,
			AvgReturn:     rec.AvgReturn,
			WinRate:       rec.WinRate,
		})
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, summaries, h.cacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache strategy list")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": summaries,
		"count":      len(summaries),
	})
}

// CreateStrategyRequest registers one user-submitted strategy. The code
// is validated statically before the record is stored; records that fail
// validation are stored as failed and stay unrunnable.
type CreateStrategyRequest struct {
	Name          string                `json:"name"`
	DisplayName   string                `json:"display_name"`
	Description   string                `json:"description"`
	Code          string                `json:"code"`
	ClassName     string                `json:"class_name"`
	Role          contracts.Role        `json:"role"`
	Category      string                `json:"category"`
	Tags          []string              `json:"tags"`
	DefaultParams contracts.Params      `json:"default_params"`
	ParamSchema   []contracts.ParamSpec `json:"param_schema"`
}

func (h *Handler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req CreateStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Code == "" || req.ClassName == "" {
		respondError(w, http.StatusBadRequest, "name, code and class_name are required")
		return
	}
	switch req.Role {
	case contracts.RoleSelector, contracts.RoleEntry, contracts.RoleExit:
	default:
		respondError(w, http.StatusBadRequest, "role must be selector, entry or exit")
		return
	}

	res := sandbox.Validate(req.Code, req.ClassName, req.Role)

	rec := &strategy.Strategy{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		Code:          req.Code,
		CodeHash:      strategy.HashCode(req.Code),
		ClassName:     req.ClassName,
		SourceType:    strategy.SourceCustom,
		Category:      req.Category,
		Role:          req.Role,
		Tags:          req.Tags,
		DefaultParams: req.DefaultParams,
		ParamSchema:   req.ParamSchema,
		RiskLevel:     res.RiskLevel,
		IsEnabled:     true,
	}
	if res.Valid {
		rec.ValidationStatus = strategy.ValidationPassed
	} else {
		rec.ValidationStatus = strategy.ValidationFailed
		rec.ValidationErrors = res.Errors
	}

	ctx := r.Context()
	if err := h.store.Create(ctx, rec); err != nil {
		if errors.Is(err, strategy.ErrDuplicateName) {
			respondError(w, http.StatusConflict, "Strategy name already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to create strategy")
		respondError(w, http.StatusInternalServerError, "Failed to create strategy")
		return
	}

	h.audit.Record(ctx, contracts.AuditValidationResult, rec.ID, rec.CodeHash,
		string(rec.ValidationStatus))
	h.invalidateCatalog(r, rec.Role)

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                rec.ID,
		"name":              rec.Name,
		"validation_status": rec.ValidationStatus,
		"validation_errors": rec.ValidationErrors,
		"risk_level":        rec.RiskLevel,
		"warnings":          res.Warnings,
	})
}

// RevalidateStrategy re-runs static validation against the stored code.
// Used after a code update put the record back into pending.
func (h *Handler) RevalidateStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid strategy id")
		return
	}

	ctx := r.Context()
	rec, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, strategy.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Strategy not found")
			return
		}
		h.logger.WithError(err).Error("Failed to load strategy")
		respondError(w, http.StatusInternalServerError, "Failed to load strategy")
		return
	}
	if err := rec.VerifyHash(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	res := sandbox.Validate(rec.Code, rec.ClassName, rec.Role)
	status := strategy.ValidationPassed
	if !res.Valid {
		status = strategy.ValidationFailed
	}
	if err := h.store.UpdateValidation(ctx, id, status, res.Errors, res.RiskLevel); err != nil {
		h.logger.WithError(err).Error("Failed to store validation result")
		respondError(w, http.StatusInternalServerError, "Failed to store validation result")
		return
	}

	h.audit.Record(ctx, contracts.AuditValidationResult, id, rec.CodeHash, string(status))
	h.invalidateCatalog(r, rec.Role)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":                id,
		"validation_status": status,
		"validation_errors": res.Errors,
		"warnings":          res.Warnings,
		"risk_level":        res.RiskLevel,
	})
}

func (h *Handler) invalidateCatalog(r *http.Request, role contracts.Role) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(r.Context(), "strategies:"+string(role)); err != nil {
		h.logger.WithError(err).Warn("Failed to invalidate strategy list cache")
	}
}
