package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the session (or its refresh-token index) does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrTokenMismatch is returned by RotateRefreshToken when the stored token is not the expected one.
	ErrTokenMismatch = errors.New("refresh token does not match")
)

// Store persists session records and the refresh-token index. Implementations must keep the
// two keys consistent: a refresh token is never reachable without its session and vice versa.
// Any error other than ErrNotFound and ErrTokenMismatch is an infrastructure failure.
type Store interface {
	// CreateOrReplace writes the session and its refresh token, overwriting any previous value.
	CreateOrReplace(ctx context.Context, sessionID, refreshToken string, profile Profile, ttl time.Duration) error

	// GetProfile returns the cached profile snapshot
	GetProfile(ctx context.Context, sessionID string) (*Profile, error)

	// GetRefreshToken returns the single live refresh token for the session
	GetRefreshToken(ctx context.Context, sessionID string) (string, error)

	// RotateRefreshToken replaces expected with next in one atomic step and renews the TTL.
	RotateRefreshToken(ctx context.Context, sessionID, expected, next string, ttl time.Duration) error

	// UpdateProfile rewrites the cached snapshot, keeping the token and expiry
	UpdateProfile(ctx context.Context, sessionID string, profile Profile) error

	// Delete removes the session and its refresh token together
	Delete(ctx context.Context, sessionID string) error
}
