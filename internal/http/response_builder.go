package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"monee/internal/assistant"
	"monee/internal/core"
	"monee/internal/filter"
	applog "monee/internal/log"
	"monee/internal/prefs"
	"monee/internal/report"
)

// validationErrors map to 400. Anything else reaching writeFailure is a 500.
var validationErrors = []error{
	errBadBody,
	errInvalidMonth,
	errInvalidYear,
	core.ErrMissingAmount,
	core.ErrInvalidAmount,
	core.ErrNegativeAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrMissingCategory,
	core.ErrInvalidCategory,
	core.ErrInvalidDate,
	filter.ErrUnknownPeriod,
	prefs.ErrInvalidTheme,
	prefs.ErrInvalidAvatar,
	prefs.ErrAvatarTooLarge,
	prefs.ErrDisplayNameTooLong,
	assistant.ErrEmptyQuestion,
	assistant.ErrMissingAPIKey,
}

type errorResponse struct {
	Error string `json:"error"`
}

// RecordsResponse is a filtered record list with its total.
type RecordsResponse struct {
	Records   []core.Expense  `json:"records"`
	Total     decimal.Decimal `json:"total"`
	Formatted string          `json:"formattedTotal"`
	Count     int             `json:"count"`
}

func newRecordsResponse(records []core.Expense) RecordsResponse {
	total := report.Total(records)
	return RecordsResponse{
		Records:   ensureRecords(records),
		Total:     total,
		Formatted: core.FormatAmount(total),
		Count:     len(records),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeFailure answers 400 with the message for validation errors and a
// generic 500 otherwise, logging the latter on the request logger.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isValidationError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		applog.FieldOperation, op,
		applog.FieldError, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// ensureRecords keeps empty lists encoded as [] instead of null.
func ensureRecords(records []core.Expense) []core.Expense {
	if records == nil {
		return []core.Expense{}
	}
	return records
}
