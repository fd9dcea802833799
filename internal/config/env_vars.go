package config

import (
	"fmt"
	"strings"
	"time"
)

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetPort() string
	GetLogLevel() string
	GetOTLPEndpoint() string
}

// SessionConfig carries the lifetimes used by the session lifecycle
type SessionConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetSessionTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

type CacheConfig interface {
	GetCacheBackend() string
	GetCacheDefaultTTL() time.Duration
	GetRedisAddr() string
}

func (c Config) GetEnv() string {
	if c.Env == "" {
		return "DEV"
	}
	return c.Env
}

func (c Config) GetAppName() string {
	return c.AppName
}

func (c Config) GetPort() string {
	port := c.Addr
	if port == "" {
		return ":8080"
	}
	if !strings.Contains(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c Config) GetLogLevel() string {
	return c.LogLevel
}

func (c Config) GetOTLPEndpoint() string {
	return c.OTLPEndpoint
}

func (c Config) GetAccessTokenExpiry() time.Duration {
	return c.AccessTokenTTL
}

func (c Config) GetSessionTTL() time.Duration {
	return c.SessionTTL
}

func (c Config) GetRefreshTokenTTL() time.Duration {
	return c.RefreshTokenTTL
}

func (c Config) GetCacheBackend() string {
	return c.CacheBackend
}

func (c Config) GetCacheDefaultTTL() time.Duration {
	return c.CacheDefaultTTL
}

func (c Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Sessions is a fixed SessionConfig, handy when wiring the core without env.
type Sessions struct {
	AccessTokenExpiry time.Duration
	SessionTTL        time.Duration
	RefreshTokenTTL   time.Duration
}

var _ SessionConfig = Sessions{}

// DefaultSessions returns the standard lifetimes: 6h access token and
// session payload, 7 day refresh token.
func DefaultSessions() Sessions {
	return Sessions{
		AccessTokenExpiry: 6 * time.Hour,
		SessionTTL:        6 * time.Hour,
		RefreshTokenTTL:   7 * 24 * time.Hour,
	}
}

func (s Sessions) GetAccessTokenExpiry() time.Duration {
	return s.AccessTokenExpiry
}

func (s Sessions) GetSessionTTL() time.Duration {
	return s.SessionTTL
}

func (s Sessions) GetRefreshTokenTTL() time.Duration {
	return s.RefreshTokenTTL
}
