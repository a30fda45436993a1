package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/mindcraft-auth/auth"
	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyPrincipal stores the authenticated *auth.Principal
const ContextKeyPrincipal ContextKey = "principal"

// RequireAuth is middleware that validates a Bearer access token against a live session
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			accessToken, ok := bearerToken(r)
			if !ok {
				s.writeError(w, r, apperrors.InvalidToken("Invalid access token", apperrors.ErrInvalidToken))
				return
			}

			principal, err := s.deps.Sessions.Authenticate(r.Context(), accessToken)
			if err != nil {
				s.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next(w, r.WithContext(ctx))
		}
	}
}

// PrincipalFromContext returns the caller set by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	principal, ok := ctx.Value(ContextKeyPrincipal).(*auth.Principal)
	return principal, ok
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get(HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
