package http

import (
	"errors"
	"net/http"

	"monee/internal/assistant"
	applog "monee/internal/log"
	"monee/internal/metrics"
	"monee/internal/prefs"
)

type noteRequest struct {
	Note string `json:"note"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.prefs.Settings(r.Context())
	if err != nil {
		writeFailure(w, r, applog.OpLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings applies a partial update and answers with the new
// masked settings.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u prefs.Update
	if err := decodeJSON(w, r, &u); err != nil {
		writeFailure(w, r, applog.OpSave, err)
		return
	}
	if err := s.prefs.Apply(r.Context(), u); err != nil {
		writeFailure(w, r, applog.OpSave, err)
		return
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, applog.OpSave, err)
		return
	}
	if err := s.prefs.SetNote(r.Context(), req.Note); err != nil {
		writeFailure(w, r, applog.OpSave, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleClearData removes every record and the stored API key.
func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		writeFailure(w, r, applog.OpClear, err)
		return
	}
	if err := s.prefs.ClearData(r.Context()); err != nil {
		writeFailure(w, r, applog.OpClear, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChat forwards the question with the current records to the assistant.
// Input problems are 400, any other assistant failure is 502.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.observeAssistant(metrics.OutcomeInvalid)
		writeFailure(w, r, applog.OpAsk, err)
		return
	}

	key, err := s.prefs.APIKey(r.Context())
	if err != nil {
		writeFailure(w, r, applog.OpAsk, err)
		return
	}

	answer, err := s.assistant.Ask(r.Context(), key, s.store.Records(r.Context()), req.Question)
	switch {
	case errors.Is(err, assistant.ErrMissingAPIKey), errors.Is(err, assistant.ErrEmptyQuestion):
		s.observeAssistant(metrics.OutcomeInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.observeAssistant(metrics.OutcomeUpstreamFail)
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Assistant unavailable",
			applog.FieldOperation, applog.OpAsk,
			applog.FieldError, err)
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	s.observeAssistant(metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

func (s *Server) observeAssistant(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAssistant(outcome)
	}
}
