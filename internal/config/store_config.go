package config

import "time"

const (
	SessionBackendRedis  = "redis"
	SessionBackendBolt   = "bolt"
	SessionBackendMemory = "memory"
)

type StoreConfig interface {
	GetSessionBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPoolSize() int
	GetBoltPath() string
	GetStoreTimeout() time.Duration
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetSessionBackend() string {
	return GetEnv("SESSION_BACKEND", SessionBackendRedis)
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Store) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Store) GetRedisPoolSize() int {
	return GetEnvInt("REDIS_POOL_SIZE", 10)
}

func (Store) GetBoltPath() string {
	return GetEnv("BOLT_PATH", "./data/sessions.db")
}

// GetStoreTimeout bounds every session store call.
func (Store) GetStoreTimeout() time.Duration {
	return GetEnvDuration("STORE_TIMEOUT", 3*time.Second)
}
