package auth

import (
	"context"

	apperrors "github.com/jrsteele09/mindcraft-auth/internal/errors"
	"github.com/jrsteele09/mindcraft-auth/twofactor"
	"github.com/jrsteele09/mindcraft-auth/users"
	"github.com/pkg/errors"
)

const msgInvalidTwoFactorCode = "Invalid two-factor code"

type TwoFactorVerifier interface {
	GenerateSecret(accountName string) (*twofactor.Secret, error)
	Verify(secret, code string) bool
}

// TwoFactorUsers is the part of the user store the two-factor flow needs.
type TwoFactorUsers interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
	UpdateTwoFactor(ctx context.Context, id int64, secret string, enabled bool) error
}

// TwoFactorSetup is returned when enrolment starts. URL is an otpauth:// link for a QR code.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

// EnableTwoFactor starts enrolment: a new secret is stored as pending until ConfirmTwoFactor
// sees a valid code for it. accountName defaults to the user's email.
func (sm *SessionManager) EnableTwoFactor(ctx context.Context, userID int64, accountName string) (*TwoFactorSetup, error) {
	user, err := sm.twoFactorUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, apperrors.Conflict("Two-factor authentication is already enabled", nil)
	}
	if accountName == "" {
		accountName = user.Email
	}

	secret, err := sm.twoFactor.GenerateSecret(accountName)
	if err != nil {
		return nil, apperrors.Internal("Could not generate two-factor secret", err)
	}
	if err := sm.updateTwoFactor(ctx, userID, secret.Base32, false); err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: secret.Base32, URL: secret.URL}, nil
}

// ConfirmTwoFactor turns a pending secret into an enabled one.
func (sm *SessionManager) ConfirmTwoFactor(ctx context.Context, userID int64, code string) error {
	if code == "" {
		return apperrors.Validation("code")
	}
	user, err := sm.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorPending() {
		return &apperrors.Error{
			Kind:     apperrors.KindValidation,
			Field:    "code",
			Messages: []string{"Two-factor enrollment not started"},
			Err:      apperrors.ErrTwoFactorNotPending,
		}
	}
	if !sm.twoFactor.Verify(user.TwoFactorSecret, code) {
		sm.logger.Info().Int64("user_id", userID).Msg("two-factor confirmation failed")
		return apperrors.InvalidToken(msgInvalidTwoFactorCode, apperrors.ErrInvalidTwoFactorCode)
	}
	return sm.updateTwoFactor(ctx, userID, user.TwoFactorSecret, true)
}

// DisableTwoFactor clears the user's secret.
func (sm *SessionManager) DisableTwoFactor(ctx context.Context, userID int64) error {
	if _, err := sm.twoFactorUser(ctx, userID); err != nil {
		return err
	}
	return sm.updateTwoFactor(ctx, userID, "", false)
}

// CheckTwoFactor gates a login. Users without an enabled secret always pass.
func (sm *SessionManager) CheckTwoFactor(ctx context.Context, userID int64, code string) error {
	user, err := sm.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return nil
	}
	if !sm.twoFactor.Verify(user.TwoFactorSecret, code) {
		sm.logger.Warn().Int64("user_id", userID).Msg("two-factor code rejected")
		return apperrors.InvalidToken(msgInvalidTwoFactorCode, apperrors.ErrInvalidTwoFactorCode)
	}
	return nil
}

func (sm *SessionManager) twoFactorUser(ctx context.Context, userID int64) (*users.User, error) {
	if sm.twoFactor == nil {
		return nil, apperrors.Internal("Two-factor authentication is not configured", apperrors.ErrUnsupported)
	}
	if userID <= 0 {
		return nil, apperrors.Validation("userId")
	}

	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	user, err := sm.users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, apperrors.NotFound("User not found", apperrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, sm.userStoreError(err, "find user")
	}
	return user, nil
}

func (sm *SessionManager) updateTwoFactor(ctx context.Context, userID int64, secret string, enabled bool) error {
	ctx, cancel := sm.storeContext(ctx)
	defer cancel()

	err := sm.users.UpdateTwoFactor(ctx, userID, secret, enabled)
	if errors.Is(err, users.ErrNotFound) {
		return apperrors.NotFound("User not found", apperrors.ErrUserNotFound)
	}
	if err != nil {
		return sm.userStoreError(err, "update two-factor")
	}
	return nil
}

func (sm *SessionManager) userStoreError(err error, op string) error {
	sm.logger.Error().Err(err).Msgf("user store: %s failed", op)
	return apperrors.Storage(msgStorageUnavailable, errors.Wrap(err, op))
}
