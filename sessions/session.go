package sessions

import "time"

// Profile is a denormalised snapshot of the user's display fields, cached next to the
// session so authenticated requests do not need a database round trip.
type Profile struct {
	UserID           int64  `json:"userId"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Score            int64  `json:"score"`
	Rank             int    `json:"rank"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	TwoFactorPending bool   `json:"twoFactorPending"`
}

// Record is the server-side state of one login. A user may hold many records (one per device).
type Record struct {
	SessionID    string    `json:"sessionId"`
	RefreshToken string    `json:"refreshToken"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

const (
	sessionKeyPrefix      = "session:"
	refreshTokenKeyPrefix = "refresh-token:"
)

// SessionKey is the key of the session record.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// RefreshTokenKey is the key of the refresh-token index entry for a session.
func RefreshTokenKey(sessionID string) string {
	return refreshTokenKeyPrefix + sessionID
}
