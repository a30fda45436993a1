package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
	"github.com/jrsteele09/mindcraft-auth/tasks"
	"github.com/pkg/errors"
)

type TaskRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TaskResponse struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubmitTaskHandler forwards a task to the worker pool and waits for its result
func (s *Server) SubmitTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Tasks == nil {
			writeStatus(w, http.StatusServiceUnavailable, "Task queue not configured")
			return
		}
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Internal("Missing principal", nil))
			return
		}

		var req TaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Kind == "" {
			s.writeError(w, r, apperrors.Validation("kind"))
			return
		}

		res, err := s.deps.Tasks.Submit(r.Context(), principal.Payload.UserID, req.Kind, req.Payload)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, TaskResponse{ID: res.ID, Payload: res.Payload})
		case errors.Is(err, tasks.ErrTaskTimeout):
			writeStatus(w, http.StatusGatewayTimeout, "Task timed out")
		case errors.Is(err, tasks.ErrRegistryFull):
			writeStatus(w, http.StatusServiceUnavailable, "Too many pending tasks")
		case errors.Is(err, tasks.ErrTaskFailed):
			s.logger.Warn().Err(err).Str("kind", req.Kind).Msg("task failed")
			writeStatus(w, http.StatusBadGateway, "Task failed")
		default:
			s.writeError(w, r, apperrors.Internal("Could not submit task", err))
		}
	}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler runs each dependency check with a short deadline
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK

		if len(s.deps.Health) > 0 {
			resp.Checks = make(map[string]string, len(s.deps.Health))
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			for name, check := range s.deps.Health {
				if err := check(ctx); err != nil {
					s.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
					resp.Checks[name] = "unavailable"
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		writeJSON(w, status, resp)
	}
}
