package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/simulator"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) handleGenerateDecision(w http.ResponseWriter, r *http.Request) {
	var req generateDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	decision, err := s.cmd.GenerateDecision(r.Context(), req.Date.toDomain(), req.Shift, idempotencyKey)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	runID, err := s.cmd.Optimize(r.Context(), req.Date.toDomain(), req.Shift, idempotencyKey)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, optimizeResponse{RunID: runID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.cmd.GetRun(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cmd.CancelRun(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelRunResponse{Status: "cancelling"})
}

func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	var req whatIfRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	base, err := s.cmd.Snapshot(r.Context(), req.Base.Date.toDomain(), req.Base.Shift)
	if err != nil {
		writeAppError(w, err)
		return
	}
	variations := make([]simulator.Variation, 0, len(req.Variations))
	for _, v := range req.Variations {
		variations = append(variations, v.toDomain())
	}

	result, err := s.cmd.RunWhatIf(r.Context(), base, variations)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatusSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.cmd.ForceStatusSweep(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusSweepResponse{
		Examined:    report.Evaluated,
		Transitions: report.Transitions,
		RanAt:       report.RanAt,
	})
}

// handleSubscribe streams events as newline-delimited JSON, one object
// per line, flushing after each so a client sees them as they arrive
// (§4.8 "server pushes events with seq").
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r.URL.Query().Get("topics"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	roleFilter := r.URL.Query().Get("filter")

	sub, err := s.cmd.Subscribe(topics, roleFilter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	ctx := r.Context()
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return
		}
		if err := enc.Encode(eventToDTO(ev)); err != nil {
			return
		}
		flusher.Flush()
	}
}

func parseTopics(raw string) ([]domain.Topic, error) {
	if raw == "" {
		return domain.AllTopics(), nil
	}
	valid := make(map[domain.Topic]bool)
	for _, t := range domain.AllTopics() {
		valid[t] = true
	}

	parts := strings.Split(raw, ",")
	topics := make([]domain.Topic, 0, len(parts))
	for _, p := range parts {
		t := domain.Topic(strings.TrimSpace(p))
		if !valid[t] {
			return nil, apperr.Newf(apperr.KindValidation, "unknown topic %q", t)
		}
		topics = append(topics, t)
	}
	return topics, nil
}
