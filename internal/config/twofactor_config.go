package config

type TwoFactorConfig interface {
	GetTOTPIssuer() string
	GetTOTPSkew() uint
}

type TwoFactor struct{}

var _ TwoFactorConfig = TwoFactor{}

func (TwoFactor) GetTOTPIssuer() string {
	return GetEnv("TOTP_ISSUER", "Mindcraft")
}

// GetTOTPSkew is the number of 30 second steps accepted either side of now.
func (TwoFactor) GetTOTPSkew() uint {
	skew := GetEnvInt("TOTP_SKEW", 1)
	if skew < 0 {
		return 0
	}
	return uint(skew)
}
