package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/override"
	"mercator-hq/themis/pkg/policy"
	"mercator-hq/themis/pkg/resolver"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleDecide serves POST /decide.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "user.id is required")
		return
	}
	if req.Resource.URL == "" && req.Resource.Service == "" {
		writeError(w, http.StatusBadRequest, "resource.url or resource.service is required")
		return
	}

	result, err := s.engine.Decide(r.Context(), &req)
	if err != nil {
		var resErr *resolver.ResolutionError
		if errors.As(err, &resErr) {
			writeError(w, http.StatusServiceUnavailable, resErr.Error())
			return
		}
		s.logger.Error("decision failed", "error", err)
		writeError(w, http.StatusInternalServerError, "decision failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePolicyActive serves GET /policy/active.
func (s *Server) handlePolicyActive(w http.ResponseWriter, r *http.Request) {
	current := s.policies.Current()
	if current == nil {
		writeError(w, http.StatusServiceUnavailable, "no active policy")
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// handlePolicyHistory serves GET /policy/history.
func (s *Server) handlePolicyHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.policies.History(r.Context())
	if err != nil {
		s.logger.Error("failed to load policy history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handlePolicyDefinitions serves GET /policy/definitions.
func (s *Server) handlePolicyDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"definitions": s.policies.Definitions()})
}

type activateRequest struct {
	PolicyID string `json:"policy_id"`
	Actor    string `json:"activated_by"`
}

// handlePolicyActivate serves POST /policy/activate.
func (s *Server) handlePolicyActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PolicyID == "" {
		writeError(w, http.StatusBadRequest, "policy_id is required")
		return
	}

	record, err := s.policies.Activate(r.Context(), req.PolicyID, req.Actor)
	if err != nil {
		var invalid *policy.InvalidPolicyError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusUnprocessableEntity, invalid.Error())
			return
		}
		s.logger.Error("activation failed", "policy_id", req.PolicyID, "error", err)
		writeError(w, http.StatusBadGateway, "activation failed: "+err.Error())
		return
	}

	s.recordAdminEvent(r, &audit.AdminEvent{
		Type:       audit.EventPolicyActivated,
		Actor:      req.Actor,
		Subject:    record.PolicyID,
		Generation: record.Generation,
	})

	writeJSON(w, http.StatusOK, record)
}

// handleOverrideList serves GET /overrides.
func (s *Server) handleOverrideList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"overrides":  s.overrides.List(),
		"generation": s.overrides.Generation(),
	})
}

// handleOverridePut serves POST /overrides.
func (s *Server) handleOverridePut(w http.ResponseWriter, r *http.Request) {
	var o override.Override
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	gen, err := s.overrides.Put(r.Context(), &o)
	if err != nil {
		var vErr *override.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("failed to store override", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store override")
		return
	}

	s.recordAdminEvent(r, &audit.AdminEvent{
		Type:       audit.EventOverrideSet,
		Actor:      o.CreatedBy,
		Subject:    o.ResourceKey,
		Detail:     string(o.Verdict),
		Generation: gen,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"override":   o,
		"generation": gen,
	})
}

// handleOverrideDelete serves DELETE /overrides/{resource_key}.
func (s *Server) handleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	resourceKey := r.PathValue("resource_key")

	gen, err := s.overrides.Delete(r.Context(), resourceKey)
	if err != nil {
		var notFound *override.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		s.logger.Error("failed to delete override", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete override")
		return
	}

	s.recordAdminEvent(r, &audit.AdminEvent{
		Type:       audit.EventOverrideRemoved,
		Subject:    resourceKey,
		Generation: gen,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":    resourceKey,
		"generation": gen,
	})
}

// handleStatsSummary serves GET /stats/summary. The window defaults to the
// last 24 hours and is adjustable via the hours query parameter.
func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	summary, err := s.auditStore.Summarize(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.logger.Error("failed to summarize decisions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize decisions")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleStatsViolations serves GET /stats/violations.
func (s *Server) handleStatsViolations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	violations, err := s.auditStore.Violations(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load violations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load violations")
		return
	}
	if violations == nil {
		violations = []*audit.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": violations})
}

// recordAdminEvent appends an administrative event to the audit trail. A
// failed write is logged but does not fail the admin operation, which has
// already been committed.
func (s *Server) recordAdminEvent(r *http.Request, event *audit.AdminEvent) {
	if err := s.recorder.RecordEvent(r.Context(), event); err != nil {
		s.logger.Error("failed to record admin event",
			"type", event.Type, "subject", event.Subject, "error", err)
	}
}
