// Package twofactor generates TOTP secrets and checks time-based one-time codes (RFC 6238:
// SHA1, 6 digits, 30 second step).
package twofactor

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period        = 30
	secretSize    = 20
	defaultIssuer = "Mindcraft"
	defaultSkew   = 1
)

// Secret is a freshly generated shared secret and its provisioning URL.
type Secret struct {
	Base32 string
	URL    string // otpauth://totp/..., rendered as a QR code by the client
}

type Verifier struct {
	issuer  string
	skew    uint
	nowFunc func() time.Time
}

type Option func(*Verifier)

func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithSkew sets how many 30s steps either side of now are accepted. 0 means exact step only.
func WithSkew(steps uint) Option {
	return func(v *Verifier) {
		v.skew = steps
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(v *Verifier) {
		v.nowFunc = now
	}
}

func NewVerifier(options ...Option) *Verifier {
	v := &Verifier{
		issuer:  defaultIssuer,
		skew:    defaultSkew,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// GenerateSecret creates a new random secret for accountName.
func (v *Verifier) GenerateSecret(accountName string) (*Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: accountName,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "generating totp secret")
	}
	return &Secret{Base32: key.Secret(), URL: key.String()}, nil
}

// Verify reports whether code is valid for secret at the current time.
func (v *Verifier) Verify(secret, code string) bool {
	code = normalize(code)
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, v.nowFunc().UTC(), v.opts())
	return err == nil && ok
}

// Code returns the code for secret at the current time.
func (v *Verifier) Code(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, v.nowFunc().UTC(), v.opts())
	return code, errors.Wrap(err, "generating totp code")
}

func (v *Verifier) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      v.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func normalize(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}
