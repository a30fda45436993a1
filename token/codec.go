package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type separates access tokens from refresh tokens so one cannot stand in for the other.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

const (
	defaultIssuer   = "mindcraft-auth"
	defaultAudience = "mindcraft-api"
)

// Payload is the content carried by a signed token.
type Payload struct {
	UserID    int64
	SessionID string
	Type      Type
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	UserID    int64  `json:"uid"`
	SessionID string `json:"sid"`
	Type      Type   `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact expiring tokens. It holds no mutable state.
type Codec struct {
	signer   Signer
	issuer   string
	audience string
	nowFunc  func() time.Time
}

type CodecOption func(*Codec)

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithAudience(audience string) CodecOption {
	return func(c *Codec) {
		c.audience = audience
	}
}

// WithNowFunc overrides the clock used for iat/exp, primarily for tests.
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{
		signer:   signer,
		issuer:   defaultIssuer,
		audience: defaultAudience,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Sign issues a token for payload that expires ttl from now. payload.ID is generated when empty.
func (c *Codec) Sign(payload Payload, ttl time.Duration) (string, error) {
	now := c.nowFunc()
	jti := payload.ID
	if jti == "" {
		jti = uuid.New().String()
	}

	tokenClaims := &claims{
		UserID:    payload.UserID,
		SessionID: payload.SessionID,
		Type:      payload.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	return c.signer.Sign(tokenClaims)
}

// Verify checks signature, issuer, audience and expiry. Failures are *VerificationError.
func (c *Codec) Verify(rawToken string) (*Payload, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, &VerificationError{Kind: KindMalformed, Err: jwt.ErrTokenMalformed}
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &claims{}, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		return nil, &VerificationError{Kind: classify(err), Err: err}
	}

	tokenClaims, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, &VerificationError{Kind: KindMalformed, Err: errors.New("error extracting claims from token")}
	}
	if tokenClaims.SessionID == "" {
		return nil, &VerificationError{Kind: KindInvalidClaims, Err: errors.New("token missing sid claim")}
	}
	if tokenClaims.Type != TypeAccess && tokenClaims.Type != TypeRefresh {
		return nil, &VerificationError{Kind: KindInvalidClaims, Err: fmt.Errorf("unknown token type %q", tokenClaims.Type)}
	}

	payload := &Payload{
		UserID:    tokenClaims.UserID,
		SessionID: tokenClaims.SessionID,
		Type:      tokenClaims.Type,
		ID:        tokenClaims.ID,
		ExpiresAt: tokenClaims.ExpiresAt.Time,
	}
	if tokenClaims.IssuedAt != nil {
		payload.IssuedAt = tokenClaims.IssuedAt.Time
	}
	return payload, nil
}

func classify(err error) VerificationKind {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return KindBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return KindMalformed
	default:
		return KindInvalidClaims
	}
}
