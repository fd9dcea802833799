// Package memcache is an in-process sessions.Cache for single instance
// deployments and tests.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-auth/auth/sessions"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache expires entries lazily on read; Cleanup or Run reclaim memory
type Cache struct {
	entries    map[string]entry
	mu         sync.RWMutex
	defaultTTL time.Duration
	nowTime    func() time.Time
}

var _ sessions.Cache = (*Cache)(nil)

type Option func(*Cache)

// WithDefaultTTL is applied when Set is called with a non-positive ttl
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Cache) {
		c.nowTime = nowFunc
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.nowTime()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.nowTime().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *Cache) Ping(context.Context) error {
	return nil
}

// TTL returns the remaining lifetime of key. ok is false when the key is
// missing or expired; a key without expiry reports 0.
func (c *Cache) TTL(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.nowTime()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return e.expiresAt.Sub(now), true
}

// Cleanup removes expired entries and reports how many were dropped
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowTime()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, including expired ones not yet cleaned up
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run calls Cleanup every interval until ctx is done
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
