package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store is the relational user table. Emails are matched case-insensitively.
type Store interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create assigns ID and CreatedAt on user.
	Create(ctx context.Context, user *User) error
	// UpdateTwoFactor stores the TOTP secret and whether it has been confirmed. An empty secret disables 2FA.
	UpdateTwoFactor(ctx context.Context, id int64, secret string, enabled bool) error
}
