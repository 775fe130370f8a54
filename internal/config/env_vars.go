package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	appNameVar         = "APP_NAME"
	envVar             = "ENV"
	logLevelVar        = "LOG_LEVEL"
	cleanupIntervalVar = "SESSION_CLEANUP_INTERVAL"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetCleanupInterval() time.Duration
}

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

func (e EnvVars) GetEnv() string {
	return e.v.GetString(envVar)
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}

func (e EnvVars) GetCleanupInterval() time.Duration {
	return durationOr(e.v, cleanupIntervalVar, 10*time.Minute)
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
