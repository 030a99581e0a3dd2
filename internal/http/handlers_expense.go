package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"monee/internal/core"
	"monee/internal/filter"
	applog "monee/internal/log"
	"monee/internal/report"
)

const defaultRecentLimit = 10

var (
	errInvalidMonth = errors.New("month must be formatted as YYYY-MM")
	errInvalidYear  = errors.New("year must be formatted as YYYY")
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]core.Expense{
		"records": ensureRecords(s.store.Records(r.Context())),
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeFailure(w, r, applog.OpCreate, err)
		return
	}

	draft, err := core.NewDraft(
		p.Get("amount"),
		strings.TrimSpace(p.Get("description")),
		strings.TrimSpace(p.Get("category")),
		strings.TrimSpace(p.Get("date")),
		s.now(),
	)
	if err != nil {
		writeFailure(w, r, applog.OpCreate, err)
		return
	}

	rec, err := s.store.Add(r.Context(), draft)
	if err != nil {
		writeFailure(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleDeleteExpense answers 204 whether or not the id existed.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.store.Remove(r.Context(), id); err != nil {
		writeFailure(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentExpenses(w http.ResponseWriter, r *http.Request) {
	records := report.Recent(s.store.Records(r.Context()), queryLimit(r, defaultRecentLimit))
	writeJSON(w, http.StatusOK, map[string][]core.Expense{"records": ensureRecords(records)})
}

func (s *Server) handleDailyExpenses(w http.ResponseWriter, r *http.Request) {
	date := queryOr(r, "date", s.now().Format(core.DateLayout))
	if !core.IsISODate(date) {
		writeFailure(w, r, "daily", core.ErrInvalidDate)
		return
	}
	records := filter.ByExactDate(s.store.Records(r.Context()), date)
	writeJSON(w, http.StatusOK, newRecordsResponse(records))
}

func (s *Server) handleMonthlyExpenses(w http.ResponseWriter, r *http.Request) {
	month := queryOr(r, "month", s.now().Format("2006-01"))
	if _, err := time.Parse("2006-01", month); err != nil {
		writeFailure(w, r, "monthly", errInvalidMonth)
		return
	}
	records := filter.ByMonthPrefix(s.store.Records(r.Context()), month)
	writeJSON(w, http.StatusOK, newRecordsResponse(records))
}

func (s *Server) handleYearlyExpenses(w http.ResponseWriter, r *http.Request) {
	year := queryOr(r, "year", s.now().Format("2006"))
	if _, err := time.Parse("2006", year); err != nil {
		writeFailure(w, r, "yearly", errInvalidYear)
		return
	}
	records := filter.ByYearPrefix(s.store.Records(r.Context()), year)
	writeJSON(w, http.StatusOK, newRecordsResponse(records))
}

// handlePeriodExpenses keeps records since the start of the named period.
// An absent name selects every record.
func (s *Server) handlePeriodExpenses(w http.ResponseWriter, r *http.Request) {
	from, err := filter.PeriodStart(queryOr(r, "name", filter.PeriodAll), s.now())
	if err != nil {
		writeFailure(w, r, "period", err)
		return
	}
	records := filter.Since(s.store.Records(r.Context()), from)
	writeJSON(w, http.StatusOK, newRecordsResponse(records))
}
