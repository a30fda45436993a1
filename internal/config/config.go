package config

import "errors"

// ErrMissingTokenSecret is returned by Validate when no signing secret is configured.
var ErrMissingTokenSecret = errors.New("TOKEN_SECRET must be set")

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	StoreConfig
	DatabaseConfig
	TwoFactorConfig
	TaskConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	Store
	Database
	TwoFactor
	Tasks
}

func New() Config {
	return mainConfig{}
}

// Validate checks the settings the service cannot start without.
func Validate(c Config) error {
	if c.GetTokenSecret() == "" {
		return ErrMissingTokenSecret
	}
	return nil
}
