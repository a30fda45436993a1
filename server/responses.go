package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Errors []string `json:"errors"`
	Field  string   `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, ErrorResponse{Errors: messages})
}

// writeError maps err onto a status code and its public messages. The cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	messages, field := apperrors.Public(err)

	event := s.logger.Debug()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	writeJSON(w, status, ErrorResponse{Errors: messages, Field: field})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &apperrors.Error{Kind: apperrors.KindValidation, Field: "body", Messages: []string{"Invalid JSON body"}, Err: err}
	}
	return nil
}
