package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/jrsteele09/mindcraft-auth/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultStoreTimeout    = 3 * time.Second
)

// Messages returned to clients. They never say why a credential was rejected.
const (
	msgInvalidRefreshToken = "Invalid refresh token"
	msgInvalidAccessToken  = "Invalid access token"
	msgInvalidToken        = "Invalid token"
	msgSessionNotFound     = "Session not found"
	msgStorageUnavailable  = "Storage unavailable"
)

// TokenCodec signs and verifies access and refresh tokens.
type TokenCodec interface {
	Sign(payload token.Payload, ttl time.Duration) (string, error)
	Verify(rawToken string) (*token.Payload, error)
}

// Tokens is the credential set handed to the client after login or refresh.
type Tokens struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionID        string    `json:"sessionId"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Payload token.Payload
	Profile sessions.Profile
}

// SessionManager drives a session through NONE -> ACTIVE -> (ROTATED -> ACTIVE) -> REVOKED.
// It keeps no state of its own: every decision is made against the session store, so any number
// of instances can serve the same users.
type SessionManager struct {
	store        sessions.Store
	codec        TokenCodec
	accessTTL    time.Duration
	refreshTTL   time.Duration
	storeTimeout time.Duration
	twoFactor    TwoFactorVerifier
	users        TwoFactorUsers
	logger       zerolog.Logger
	nowFunc      func() time.Time
	newSessionID func(userID int64) string
}

type ManagerOption func(*SessionManager)

func WithAccessTokenTTL(ttl time.Duration) ManagerOption {
	return func(sm *SessionManager) {
		sm.accessTTL = ttl
	}
}

func WithRefreshTokenTTL(ttl time.Duration) ManagerOption {
	return func(sm *SessionManager) {
		sm.refreshTTL = ttl
	}
}

// WithStoreTimeout bounds every store call. A call that runs out of time is a storage failure.
func WithStoreTimeout(timeout time.Duration) ManagerOption {
	return func(sm *SessionManager) {
		sm.storeTimeout = timeout
	}
}

// WithTwoFactor enables the TOTP operations.
func WithTwoFactor(verifier TwoFactorVerifier, users TwoFactorUsers) ManagerOption {
	return func(sm *SessionManager) {
		sm.twoFactor = verifier
		sm.users = users
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(sm *SessionManager) {
		sm.logger = logger
	}
}

// WithNowFunc sets the clock used for reported expiries (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(sm *SessionManager) {
		sm.nowFunc = now
	}
}

func WithSessionIDFunc(f func(userID int64) string) ManagerOption {
	return func(sm *SessionManager) {
		sm.newSessionID = f
	}
}

// NewSessionManager initializes a SessionManager with required dependencies.
func NewSessionManager(store sessions.Store, codec TokenCodec, options ...ManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("[NewSessionManager] session store is required")
	}
	if codec == nil {
		return nil, errors.New("[NewSessionManager] token codec is required")
	}

	sm := &SessionManager{
		store:        store,
		codec:        codec,
		accessTTL:    defaultAccessTokenTTL,
		refreshTTL:   defaultRefreshTokenTTL,
		storeTimeout: defaultStoreTimeout,
		logger:       log.Logger,
		nowFunc:      time.Now,
		newSessionID: defaultSessionID,
	}
	for _, opt := range options {
		opt(sm)
	}

	if (sm.twoFactor == nil) != (sm.users == nil) {
		return nil, errors.New("[NewSessionManager] two-factor needs both a verifier and a user store")
	}
	return sm, nil
}

func defaultSessionID(userID int64) string {
	return fmt.Sprintf("%d:%s", userID, uuid.NewString())
}

// Login opens a new session for userID and caches profile alongside it.
func (sm *SessionManager) Login(ctx context.Context, userID int64, profile sessions.Profile) (*Tokens, error) {
	if userID <= 0 {
		return nil, apperrors.Validation("userId")
	}

	sessionID := sm.newSessionID(userID)
	tokens, err := sm.issue(userID, sessionID)
	if err != nil {
		return nil, err
	}

	profile.UserID = userID
	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	if err := sm.store.CreateOrReplace(ctx, sessionID, tokens.RefreshToken, profile, sm.refreshTTL); err != nil {
		return nil, sm.storageError(err, "create session", sessionID)
	}

	sm.logger.Debug().Int64("user_id", userID).Str("session_id", sessionID).Msg("session created")
	return tokens, nil
}

// Refresh exchanges the session's current refresh token for a new pair. The session id is kept;
// only the token value rotates, and the presented token stops working the moment this succeeds.
func (sm *SessionManager) Refresh(ctx context.Context, userID int64, sessionID, refreshToken string) (*Tokens, error) {
	switch {
	case userID <= 0:
		return nil, apperrors.Validation("userId")
	case sessionID == "":
		return nil, apperrors.Validation("sessionId")
	case refreshToken == "":
		return nil, apperrors.Validation("refreshToken")
	}

	if _, err := sm.verify(refreshToken, token.TypeRefresh, userID, sessionID); err != nil {
		sm.logger.Info().Err(err).Str("session_id", sessionID).Msg("refresh rejected")
		return nil, apperrors.InvalidToken(msgInvalidRefreshToken, err)
	}

	tokens, err := sm.issue(userID, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	err = sm.store.RotateRefreshToken(ctx, sessionID, refreshToken, tokens.RefreshToken, sm.refreshTTL)
	switch {
	case err == nil:
		return tokens, nil
	case errors.Is(err, sessions.ErrTokenMismatch):
		sm.logger.Warn().Str("session_id", sessionID).Msg("stale refresh token presented")
		return nil, apperrors.InvalidToken(msgInvalidRefreshToken, apperrors.ErrInvalidRefreshToken)
	case errors.Is(err, sessions.ErrNotFound):
		sm.logger.Info().Str("session_id", sessionID).Msg("refresh for unknown session")
		return nil, apperrors.InvalidToken(msgInvalidRefreshToken, apperrors.ErrSessionNotFound)
	default:
		return nil, sm.storageError(err, "rotate refresh token", sessionID)
	}
}

// Logout revokes the session. Both tokens must belong to it and the refresh token must be the
// live one.
func (sm *SessionManager) Logout(ctx context.Context, userID int64, sessionID, accessToken, refreshToken string) error {
	switch {
	case userID <= 0:
		return apperrors.Validation("userId")
	case sessionID == "":
		return apperrors.Validation("sessionId")
	case accessToken == "":
		return apperrors.Validation("accessToken")
	case refreshToken == "":
		return apperrors.Validation("refreshToken")
	}

	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	profile, err := sm.store.GetProfile(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return apperrors.NotFound(msgSessionNotFound, apperrors.ErrSessionNotFound)
	}
	if err != nil {
		return sm.storageError(err, "load session", sessionID)
	}
	if profile.UserID != userID {
		return apperrors.NotFound(msgSessionNotFound, apperrors.Wrapf(apperrors.ErrSessionNotFound, "session owned by user %d", profile.UserID))
	}

	if _, err := sm.verify(accessToken, token.TypeAccess, userID, sessionID); err != nil {
		return apperrors.InvalidToken(msgInvalidToken, err)
	}
	if _, err := sm.verify(refreshToken, token.TypeRefresh, userID, sessionID); err != nil {
		return apperrors.InvalidToken(msgInvalidToken, err)
	}

	stored, err := sm.store.GetRefreshToken(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return apperrors.NotFound(msgSessionNotFound, apperrors.ErrSessionNotFound)
	}
	if err != nil {
		return sm.storageError(err, "load refresh token", sessionID)
	}
	if stored != refreshToken {
		return apperrors.InvalidToken(msgInvalidRefreshToken, apperrors.ErrInvalidRefreshToken)
	}

	err = sm.store.Delete(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		// a concurrent logout got there first; the session is gone either way
		sm.logger.Info().Str("session_id", sessionID).Msg("session already removed")
		return nil
	}
	if err != nil {
		return sm.storageError(err, "delete session", sessionID)
	}

	sm.logger.Debug().Int64("user_id", userID).Str("session_id", sessionID).Msg("session revoked")
	return nil
}

// VerifyAccessToken checks an access token without touching the store.
func (sm *SessionManager) VerifyAccessToken(accessToken string) (*token.Payload, error) {
	payload, err := sm.codec.Verify(accessToken)
	if err != nil {
		return nil, apperrors.InvalidToken(msgInvalidAccessToken, err)
	}
	if payload.Type != token.TypeAccess {
		return nil, apperrors.InvalidToken(msgInvalidAccessToken, apperrors.ErrTokenTypeMismatch)
	}
	return payload, nil
}

// Authenticate verifies accessToken and loads the session's cached profile. Tokens of a revoked
// session are rejected even while they are still within their lifetime.
func (sm *SessionManager) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	payload, err := sm.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	profile, err := sm.store.GetProfile(ctx, payload.SessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, apperrors.InvalidToken(msgInvalidAccessToken, apperrors.ErrTokenRevoked)
	}
	if err != nil {
		return nil, sm.storageError(err, "load session", payload.SessionID)
	}
	if profile.UserID != payload.UserID {
		return nil, apperrors.InvalidToken(msgInvalidAccessToken, apperrors.ErrTokenSubjectMismatch)
	}
	return &Principal{Payload: *payload, Profile: *profile}, nil
}

// UpdateProfile replaces the cached profile of a live session. The session keeps its owner:
// profile.UserID is overwritten with the stored one.
func (sm *SessionManager) UpdateProfile(ctx context.Context, sessionID string, profile sessions.Profile) error {
	if sessionID == "" {
		return apperrors.Validation("sessionId")
	}

	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	stored, err := sm.store.GetProfile(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return apperrors.NotFound(msgSessionNotFound, apperrors.ErrSessionNotFound)
	}
	if err != nil {
		return sm.storageError(err, "load session", sessionID)
	}
	if profile.UserID != stored.UserID {
		sm.logger.Warn().Str("session_id", sessionID).Int64("user_id", stored.UserID).
			Int64("requested_user_id", profile.UserID).Msg("profile update cannot change the session owner")
		profile.UserID = stored.UserID
	}

	err = sm.store.UpdateProfile(ctx, sessionID, profile)
	if errors.Is(err, sessions.ErrNotFound) {
		return apperrors.NotFound(msgSessionNotFound, apperrors.ErrSessionNotFound)
	}
	if err != nil {
		return sm.storageError(err, "update profile", sessionID)
	}
	return nil
}

// issue signs a fresh access/refresh pair for the session.
func (sm *SessionManager) issue(userID int64, sessionID string) (*Tokens, error) {
	now := sm.nowFunc()

	access, err := sm.codec.Sign(token.Payload{UserID: userID, SessionID: sessionID, Type: token.TypeAccess}, sm.accessTTL)
	if err != nil {
		return nil, apperrors.Internal("Could not issue token", errors.Wrap(err, "sign access token"))
	}
	refresh, err := sm.codec.Sign(token.Payload{UserID: userID, SessionID: sessionID, Type: token.TypeRefresh}, sm.refreshTTL)
	if err != nil {
		return nil, apperrors.Internal("Could not issue token", errors.Wrap(err, "sign refresh token"))
	}

	return &Tokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(sm.accessTTL),
		RefreshExpiresAt: now.Add(sm.refreshTTL),
	}, nil
}

// verify checks rawToken and that it was issued for this user and session.
func (sm *SessionManager) verify(rawToken string, want token.Type, userID int64, sessionID string) (*token.Payload, error) {
	payload, err := sm.codec.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	if payload.Type != want {
		return nil, apperrors.Wrapf(apperrors.ErrTokenTypeMismatch, "want %s token, got %s", want, payload.Type)
	}
	if payload.UserID != userID || payload.SessionID != sessionID {
		return nil, apperrors.ErrTokenSubjectMismatch
	}
	return payload, nil
}

func (sm *SessionManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, sm.storeTimeout)
}

func (sm *SessionManager) storageError(err error, op, sessionID string) error {
	sm.logger.Error().Err(err).Str("session_id", sessionID).Msgf("session store: %s failed", op)
	return apperrors.Storage(msgStorageUnavailable, errors.Wrap(err, op))
}
