// Package config loads application configuration from the environment and
// an optional .env file, exposed through capability-sized interfaces so
// components declare only the settings they read.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	TokenConfig
	StorageConfig
	DirectoryConfig
}

type mainConfig struct {
	EnvVars
	Tokens
	Storage
	Directory
}

// New loads configuration. A missing .env file is ignored; environment
// variables override file values.
func New() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	if v.GetString(tokenSecretVar) == "" {
		return nil, errors.Errorf("config: %s must be set", tokenSecretVar)
	}
	if v.GetString(fingerprintSaltVar) == "" {
		return nil, errors.Errorf("config: %s must be set", fingerprintSaltVar)
	}

	return mainConfig{
		EnvVars{v},
		Tokens{v},
		Storage{v},
		Directory{v},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(appNameVar, "Auth Core")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(cleanupIntervalVar, "10m")

	v.SetDefault(tokenIssuerVar, "auth-core")
	v.SetDefault(accessTTLVar, "15m")
	v.SetDefault(refreshTTLVar, "168h")  // 7d
	v.SetDefault(rememberTTLVar, "720h") // 30d

	v.SetDefault(databaseURLVar, "postgres://localhost:5432/authcore?sslmode=disable")
	v.SetDefault(redisAddrVar, "localhost:6379")
	v.SetDefault(redisDBVar, 0)
	v.SetDefault(permissionTTLVar, "5m")

	v.SetDefault(ldapGroupFilterVar, "(member=%s)")
}
