package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/mindcraft-auth/auth"
	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/jrsteele09/mindcraft-auth/users"
	"github.com/pkg/errors"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"` // TOTP code, required once 2FA is enabled
}

// SessionRequest carries the user id for refresh and logout; the credentials travel in headers.
type SessionRequest struct {
	UserID int64 `json:"userId"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

type AuthResponse struct {
	User sessions.Profile `json:"user"`
	auth.Tokens
}

type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterHandler creates an account and opens its first session
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)

		switch {
		case req.Name == "":
			s.writeError(w, r, apperrors.Validation("name"))
			return
		case req.Email == "":
			s.writeError(w, r, apperrors.Validation("email"))
			return
		case req.Password == "":
			s.writeError(w, r, apperrors.Validation("password"))
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			s.writeError(w, r, apperrors.Validation("password", err.Error()))
			return
		}

		hash, err := s.deps.Hasher.Hash(req.Password)
		if err != nil {
			s.writeError(w, r, apperrors.Internal("Could not register user", err))
			return
		}

		user := &users.User{Name: req.Name, Email: req.Email, PasswordHash: hash}
		err = s.deps.Users.Create(r.Context(), user)
		if errors.Is(err, users.ErrDuplicateEmail) {
			s.writeError(w, r, apperrors.Conflict("User already exists", apperrors.ErrDuplicateUser))
			return
		}
		if err != nil {
			s.writeError(w, r, apperrors.Storage("Could not register user", err))
			return
		}

		s.openSession(w, r, user, http.StatusCreated)
	}
}

// LoginHandler checks the password (and TOTP code when enabled) and opens a session
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Email == "" {
			s.writeError(w, r, apperrors.Validation("email"))
			return
		}
		if req.Password == "" {
			s.writeError(w, r, apperrors.Validation("password"))
			return
		}

		user, err := s.deps.Users.FindByEmail(r.Context(), req.Email)
		if errors.Is(err, users.ErrNotFound) {
			s.writeError(w, r, apperrors.NotFound("User not found", apperrors.ErrUserNotFound))
			return
		}
		if err != nil {
			s.writeError(w, r, apperrors.Storage("Could not load user", err))
			return
		}

		ok, err := s.deps.Hasher.Compare(req.Password, user.PasswordHash)
		if err != nil {
			s.writeError(w, r, apperrors.Internal("Could not verify password", err))
			return
		}
		if !ok {
			s.writeError(w, r, apperrors.InvalidToken("Invalid credentials", apperrors.ErrInvalidCredentials))
			return
		}

		if err := s.deps.Sessions.CheckTwoFactor(r.Context(), user.ID, req.Code); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.openSession(w, r, user, http.StatusOK)
	}
}

// RefreshHandler rotates the refresh token presented in X-Refresh-Token
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		sessionID := r.Header.Get(HeaderSessionID)
		tokens, err := s.deps.Sessions.Refresh(r.Context(), req.UserID, sessionID, r.Header.Get(HeaderRefreshToken))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		setTokenHeaders(w, tokens)
		writeJSON(w, http.StatusOK, tokens)
	}
}

// LogoutHandler revokes the session named in X-Session-Id
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		accessToken, _ := bearerToken(r)
		err := s.deps.Sessions.Logout(r.Context(), req.UserID,
			r.Header.Get(HeaderSessionID), accessToken, r.Header.Get(HeaderRefreshToken))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
	}
}

// MeHandler returns the profile cached with the caller's session
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Internal("Missing principal", nil))
			return
		}
		writeJSON(w, http.StatusOK, principal.Profile)
	}
}

func (s *Server) EnableTwoFactorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Internal("Missing principal", nil))
			return
		}

		setup, err := s.deps.Sessions.EnableTwoFactor(r.Context(), principal.Payload.UserID, principal.Profile.Email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		profile := principal.Profile
		profile.TwoFactorPending = true
		s.refreshCachedProfile(r, principal, profile)

		writeJSON(w, http.StatusOK, setup)
	}
}

func (s *Server) ConfirmTwoFactorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Internal("Missing principal", nil))
			return
		}
		var req TwoFactorCodeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.deps.Sessions.ConfirmTwoFactor(r.Context(), principal.Payload.UserID, req.Code); err != nil {
			s.writeError(w, r, err)
			return
		}

		profile := principal.Profile
		profile.TwoFactorEnabled = true
		profile.TwoFactorPending = false
		s.refreshCachedProfile(r, principal, profile)

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Two-factor authentication enabled"})
	}
}

func (s *Server) DisableTwoFactorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Internal("Missing principal", nil))
			return
		}

		if err := s.deps.Sessions.DisableTwoFactor(r.Context(), principal.Payload.UserID); err != nil {
			s.writeError(w, r, err)
			return
		}

		profile := principal.Profile
		profile.TwoFactorEnabled = false
		profile.TwoFactorPending = false
		s.refreshCachedProfile(r, principal, profile)

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Two-factor authentication disabled"})
	}
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request, user *users.User, status int) {
	profile := ProfileFromUser(user)
	tokens, err := s.deps.Sessions.Login(r.Context(), user.ID, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setTokenHeaders(w, tokens)
	writeJSON(w, status, AuthResponse{User: profile, Tokens: *tokens})
}

// refreshCachedProfile is best effort and only touches the calling session. The user's other
// sessions keep their snapshot until they log in again; two-factor checks read the user store.
func (s *Server) refreshCachedProfile(r *http.Request, principal *auth.Principal, profile sessions.Profile) {
	if err := s.deps.Sessions.UpdateProfile(r.Context(), principal.Payload.SessionID, profile); err != nil {
		s.logger.Warn().Err(err).Str("session_id", principal.Payload.SessionID).Msg("could not update cached profile")
	}
}

func setTokenHeaders(w http.ResponseWriter, tokens *auth.Tokens) {
	w.Header().Set(HeaderAuthorization, "Bearer "+tokens.AccessToken)
	w.Header().Set(HeaderRefreshToken, tokens.RefreshToken)
	w.Header().Set(HeaderSessionID, tokens.SessionID)
}

// ProfileFromUser builds the snapshot cached with a session.
func ProfileFromUser(u *users.User) sessions.Profile {
	return sessions.Profile{
		UserID:           u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Score:            u.Score,
		Rank:             u.Rank,
		TwoFactorEnabled: u.TwoFactorEnabled,
		TwoFactorPending: u.TwoFactorPending(),
	}
}
