package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	tokenSecretVar     = "TOKEN_SECRET"
	fingerprintSaltVar = "TOKEN_FINGERPRINT_SALT"
	tokenIssuerVar     = "TOKEN_ISSUER"
	accessTTLVar       = "TOKEN_ACCESS_TTL"
	refreshTTLVar      = "TOKEN_REFRESH_TTL"
	rememberTTLVar     = "TOKEN_REMEMBER_REFRESH_TTL"
)

type TokenConfig interface {
	GetTokenSecret() []byte
	GetFingerprintSalt() []byte
	GetTokenIssuer() string
	GetAccessTTL() time.Duration
	GetRefreshTTL() time.Duration
	GetRememberRefreshTTL() time.Duration
}

type Tokens struct {
	v *viper.Viper
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetTokenSecret() []byte {
	return []byte(t.v.GetString(tokenSecretVar))
}

func (t Tokens) GetFingerprintSalt() []byte {
	return []byte(t.v.GetString(fingerprintSaltVar))
}

func (t Tokens) GetTokenIssuer() string {
	return t.v.GetString(tokenIssuerVar)
}

func (t Tokens) GetAccessTTL() time.Duration {
	return durationOr(t.v, accessTTLVar, 15*time.Minute)
}

func (t Tokens) GetRefreshTTL() time.Duration {
	return durationOr(t.v, refreshTTLVar, 7*24*time.Hour)
}

func (t Tokens) GetRememberRefreshTTL() time.Duration {
	return durationOr(t.v, rememberTTLVar, 30*24*time.Hour)
}
