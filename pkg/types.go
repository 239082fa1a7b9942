package pkg

import (
	"net/http"
	"time"
)

// VirtualFS represents a virtual file system interface
// This interface is compatible with http.FileSystem
type VirtualFS interface {
	Open(name string) (http.File, error)
	Exists(name string) bool
}

// Minimal interface definitions for Context compatibility
// Full implementations are in their respective files

// CacheManager is the in-memory TTL cache backing Proxy response caching.
type CacheManager interface {
	Get(key string) (interface{}, error)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	Exists(key string) bool
	Clear() error
}

type ConfigManager interface {
	Load(configPath string) error
	LoadFromEnv() error
	Reload() error
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	GetWithDefault(key string, defaultValue interface{}) interface{}
	GetStringWithDefault(key, defaultValue string) string
	GetIntWithDefault(key string, defaultValue int) int
	GetBoolWithDefault(key string, defaultValue bool) bool
	GetEnv() string
	Sub(key string) ConfigManager
	IsSet(key string) bool
	IsProduction() bool
	IsDevelopment() bool
	IsTest() bool
	Validate() error
	Watch(callback func()) error
	StopWatching() error
}

type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithRequestID(requestID string) Logger
}

