package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"monee/internal/core"
	"monee/internal/filter"
	"monee/internal/report"
)

const (
	dashboardRecent = 3
	reportTop       = 5
	reportRecent    = 10
)

// DashboardResponse is the landing view: totals, the latest inserted records
// and the profile fields shown next to them.
type DashboardResponse struct {
	Total          decimal.Decimal `json:"total"`
	FormattedTotal string          `json:"formattedTotal"`
	Count          int             `json:"count"`
	Recent         []core.Expense  `json:"recent"`
	Note           string          `json:"note"`
	DisplayName    string          `json:"displayName"`
	Theme          string          `json:"theme"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	settings, err := s.prefs.Settings(r.Context())
	if err != nil {
		writeFailure(w, r, "dashboard", err)
		return
	}

	records := s.store.Records(r.Context())
	total := report.Total(records)
	writeJSON(w, http.StatusOK, DashboardResponse{
		Total:          total,
		FormattedTotal: core.FormatAmount(total),
		Count:          len(records),
		Recent:         ensureRecords(report.Recent(records, dashboardRecent)),
		Note:           settings.Note,
		DisplayName:    settings.DisplayName,
		Theme:          settings.Theme,
	})
}

// handleReport summarizes the records of an optional period. Summaries are
// cached until the next record change.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period := queryOr(r, "period", filter.PeriodAll)
	from, err := filter.PeriodStart(period, s.now())
	if err != nil {
		writeFailure(w, r, "report", err)
		return
	}

	key := period + "|" + from.Format(core.DateLayout)
	var gen uint64
	if s.reports != nil {
		cached, g, ok := s.reports.Get(key)
		if ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
		gen = g
	}

	summary := report.Summarize(filter.Since(s.store.Records(r.Context()), from), reportTop, reportRecent)
	summary.Recent = ensureRecords(summary.Recent)
	if s.reports != nil {
		s.reports.Set(key, gen, summary)
	}
	writeJSON(w, http.StatusOK, summary)
}
