package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// RecentAudit returns the newest audit events, newest first.
func (h *Handler) RecentAudit(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, "n must be between 1 and 1000")
			return
		}
		n = parsed
	}

	events := h.audit.Recent(n)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// StrategyAudit returns audit events for one strategy within an optional
// RFC 3339 time window.
func (h *Handler) StrategyAudit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid strategy id")
		return
	}

	from := time.Time{}
	to := time.Now().Add(time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			respondError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
	}

	events := h.audit.Query(id, from, to)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategy_id": id,
		"events":      events,
		"count":       len(events),
	})
}
