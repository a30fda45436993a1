package users

import (
	"fmt"
	"time"
	"unicode"
)

type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // never serialize
	Score            int64     `json:"score"`
	Rank             int       `json:"rank"`
	TwoFactorSecret  string    `json:"-"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TwoFactorPending is true between enrolment and the first confirmed code.
func (u *User) TwoFactorPending() bool {
	return u.TwoFactorSecret != "" && !u.TwoFactorEnabled
}

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long and at most MaxPasswordBytes bytes
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes long", MaxPasswordBytes)
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
