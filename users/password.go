package users

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hash string) (bool, error)
}

// NewPasswordHasher returns the hasher registered under name.
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch name {
	case HasherBcrypt, "":
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	case HasherArgon2id:
		return Argon2idHasher{Params: argon2id.DefaultParams}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	return string(bytes), errors.Wrap(err, "bcrypt hash")
}

func (h BcryptHasher) Compare(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	// nothing over the bcrypt limit can have been hashed
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "bcrypt compare")
	}
	return true, nil
}

type Argon2idHasher struct {
	Params *argon2id.Params
}

func (h Argon2idHasher) Hash(plain string) (string, error) {
	hash, err := argon2id.CreateHash(plain, h.Params)
	return hash, errors.Wrap(err, "argon2id hash")
}

func (h Argon2idHasher) Compare(plain, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(plain, hash)
	return match, errors.Wrap(err, "argon2id compare")
}
