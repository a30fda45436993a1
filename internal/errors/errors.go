package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common causes used across the session lifecycle. They are wrapped inside an *Error so the
// HTTP layer only sees the Kind and the public messages.
var (
	// Authentication errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateUser        = errors.New("user already exists")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrTwoFactorNotPending  = errors.New("two-factor enrollment not started")

	// Token errors
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrTokenTypeMismatch    = errors.New("token type mismatch")
	ErrTokenSubjectMismatch = errors.New("token does not belong to session")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindInvalidToken Kind = "invalid_token"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage"
	KindInternal     Kind = "internal"
)

// Error is the structured error returned by the session manager and the controllers.
// Messages and Field are safe to show to a client, Err is only for server-side logs.
type Error struct {
	Kind     Kind
	Messages []string
	Field    string
	Err      error
}

func (e *Error) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports missing or malformed caller input.
func Validation(field string, messages ...string) error {
	if len(messages) == 0 {
		messages = []string{"is required"}
	}
	return &Error{Kind: KindValidation, Field: field, Messages: messages}
}

// InvalidToken reports a rejected credential. message must stay generic.
func InvalidToken(message string, cause error) error {
	return &Error{Kind: KindInvalidToken, Messages: []string{message}, Err: cause}
}

func NotFound(message string, cause error) error {
	return &Error{Kind: KindNotFound, Messages: []string{message}, Err: cause}
}

func Conflict(message string, cause error) error {
	return &Error{Kind: KindConflict, Messages: []string{message}, Err: cause}
}

// Storage reports an unreachable or timed out backend. Callers may retry with backoff.
func Storage(message string, cause error) error {
	return &Error{Kind: KindStorage, Messages: []string{message}, Err: cause}
}

func Internal(message string, cause error) error {
	return &Error{Kind: KindInternal, Messages: []string{message}, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error onto the status codes used by the auth controller.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidToken:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the client-facing part of err. Unknown errors are reduced to a generic message.
func Public(err error) (messages []string, field string) {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindStorage {
		return e.Messages, e.Field
	}
	return []string{"Internal server error"}, ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
