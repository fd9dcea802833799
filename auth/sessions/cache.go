package sessions

import (
	"context"
	"time"
)

// Cache is a time-expiring key/value store. Get reports a missing or
// expired key with found == false and a nil error; err is reserved for
// backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Invalidate deletes the session payload and refresh token cached for email
func Invalidate(ctx context.Context, cache Cache, email string) error {
	return cache.Delete(ctx, SessionKey(email), RefreshTokenKey(email))
}
