package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	databaseURLVar   = "DATABASE_URL"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
	permissionTTLVar = "PERMISSION_CACHE_TTL"
)

type StorageConfig interface {
	GetDatabaseURL() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetPermissionTTL() time.Duration
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetDatabaseURL() string {
	return s.v.GetString(databaseURLVar)
}

func (s Storage) GetRedisAddr() string {
	return s.v.GetString(redisAddrVar)
}

func (s Storage) GetRedisPassword() string {
	return s.v.GetString(redisPasswordVar)
}

func (s Storage) GetRedisDB() int {
	return s.v.GetInt(redisDBVar)
}

func (s Storage) GetPermissionTTL() time.Duration {
	return durationOr(s.v, permissionTTLVar, 5*time.Minute)
}
