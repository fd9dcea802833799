// Package rediscache is the Redis-backed sessions.Cache.
package rediscache

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-auth/auth/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ClientConfig holds the connection parameters for NewClient
type ClientConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func NewClient(cfg ClientConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type Cache struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
}

var _ sessions.Cache = (*Cache)(nil)

type Option func(*Cache)

// WithDefaultTTL is applied when Set is called with a non-positive ttl
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

func New(client redis.UniversalClient, options ...Option) (*Cache, error) {
	if client == nil {
		return nil, errors.New("[rediscache.New] client is required")
	}
	c := &Cache{client: client}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[rediscache.Get] %s", key)
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	// a zero ttl stores the key without expiry
	return errors.Wrapf(c.client.Set(ctx, key, value, ttl).Err(), "[rediscache.Set] %s", key)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "[rediscache.Delete]")
}

func (c *Cache) Ping(ctx context.Context) error {
	return errors.Wrap(c.client.Ping(ctx).Err(), "[rediscache.Ping]")
}
