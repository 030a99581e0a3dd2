package http

import (
	"context"
	"net/http"
	"time"

	"monee/internal/core"
	"monee/internal/filter"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady verifies the preference storage answers a read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	status, code := "ready", http.StatusOK
	if _, err := s.prefs.Note(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]core.Category{"categories": core.Categories()})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	records := s.store.Records(r.Context())
	writeJSON(w, http.StatusOK, map[string][]string{
		"dates":  nonNil(filter.DistinctDates(records)),
		"months": nonNil(filter.DistinctMonths(records)),
		"years":  nonNil(filter.DistinctYears(records)),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
