package config

import "time"

type TokenConfig interface {
	GetTokenSecret() string
	GetTokenIssuer() string
	GetTokenAudience() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

type Token struct{}

var _ TokenConfig = Token{}

func (Token) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "")
}

func (Token) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "mindcraft-auth")
}

func (Token) GetTokenAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "mindcraft-api")
}

func (Token) GetAccessTokenTTL() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_TTL", time.Hour)
}

func (Token) GetRefreshTokenTTL() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour) // 30 days
}
