package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sujun1972/stock-analysis-go/internal/backtest"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// ValidateCombination checks a combination without running it. Missing
// layers and duplicate exits come back as errors; names that resolve to
// no known strategy come back as warnings since a record may still be
// created before the run.
func (h *Handler) ValidateCombination(w http.ResponseWriter, r *http.Request) {
	var comb backtest.Combination
	if err := json.NewDecoder(r.Body).Decode(&comb); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs []string
	if err := comb.Validate(); err != nil {
		var inv *contracts.CombinationInvalidError
		if errors.As(err, &inv) {
			errs = inv.Problems
		} else {
			errs = []string{err.Error()}
		}
	}

	var warnings []string
	check := func(role contracts.Role, name string) {
		if name == "" || h.registry.Has(role, name) {
			return
		}
		if _, err := h.store.GetByName(r.Context(), name); err != nil {
			warnings = append(warnings, "unknown "+string(role)+" strategy: "+name)
		}
	}
	check(contracts.RoleSelector, comb.Selector.Name)
	check(contracts.RoleEntry, comb.Entry.Name)
	for _, ref := range comb.Exits {
		check(contracts.RoleExit, ref.Name)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    len(errs) == 0,
		"errors":   errs,
		"warnings": warnings,
	})
}

// StartBacktestRequest is a run request plus delivery mode. With async
// set the response is the run id immediately; otherwise the handler
// waits for the run to finish and returns the stored result.
type StartBacktestRequest struct {
	backtest.Request
	Async bool `json:"async"`
}

func (h *Handler) StartBacktest(w http.ResponseWriter, r *http.Request) {
	var req StartBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Fill unset economics from the server defaults.
	if req.InitialCapital == 0 {
		req.InitialCapital = h.defaults.InitialCapital
	}
	if req.Frictions == (backtest.Frictions{}) {
		req.Frictions = h.defaults.Frictions
	}

	run, err := h.runs.Start(&req.Request)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Async {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"run_id": run.ID,
			"status": run.Status,
		})
		return
	}

	// Synchronous delivery: drain the progress stream until the run
	// reaches a terminal state, then return the stored run.
	events, stop, err := h.runs.Subscribe(run.ID)
	if err == nil {
		defer stop()
		for {
			select {
			case _, ok := <-events:
				if !ok {
					events = nil
				}
			case <-r.Context().Done():
				respondError(w, http.StatusRequestTimeout, "Client went away")
				return
			}
			if events == nil {
				break
			}
		}
	}

	final, err := h.runs.Get(run.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Run disappeared")
		return
	}
	status := http.StatusOK
	if final.Status == backtest.RunFailed {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, final)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.List()

	// Strip heavyweight result payloads from the listing.
	type runSummary struct {
		ID         string             `json:"id"`
		Status     backtest.RunStatus `json:"status"`
		Progress   float64            `json:"progress"`
		Error      string             `json:"error,omitempty"`
		CreatedAt  time.Time          `json:"created_at"`
		FinishedAt time.Time          `json:"finished_at"`
	}
	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			ID:         run.ID,
			Status:     run.Status,
			Progress:   run.Progress,
			Error:      run.Error,
			CreatedAt:  run.CreatedAt,
			FinishedAt: run.FinishedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  summaries,
		"count": len(summaries),
	})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cacheKey := "runs:" + id

	if h.cache != nil {
		var cached backtest.Run
		if hit, err := h.cache.Get(r.Context(), cacheKey, &cached); err == nil && hit {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	run, err := h.runs.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	// Only terminal successful runs are immutable enough to cache.
	if h.cache != nil && run.Status == backtest.RunCompleted {
		if err := h.cache.Set(r.Context(), cacheKey, run, h.cacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache run result")
		}
	}
	respondJSON(w, http.StatusOK, run)
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runs.Cancel(id); err != nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"run_id": id,
		"status": "canceling",
	})
}
