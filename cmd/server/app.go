package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/auth/sessions"
	"github.com/jrsteele09/go-session-auth/auth/sessions/memcache"
	"github.com/jrsteele09/go-session-auth/auth/sessions/rediscache"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/database"
	"github.com/jrsteele09/go-session-auth/internal/metrics"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/jrsteele09/go-session-auth/users/bunrepo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const cacheCleanupInterval = time.Minute

// app is the wired service graph behind the HTTP handler
type app struct {
	handler http.Handler
	closers []func() error
}

func newApp(ctx context.Context, c config.Config) (_ *app, returnError error) {
	a := &app{}
	defer func() {
		if returnError != nil {
			a.Close()
		}
	}()

	db, err := database.Open(ctx, c.DBDriver, c.DBDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := bunrepo.Migrate(ctx, db); err != nil {
		return nil, err
	}
	userRepo, err := bunrepo.New(db)
	if err != nil {
		return nil, err
	}

	cache, err := a.newSessionCache(ctx, c)
	if err != nil {
		return nil, err
	}

	if c.UsesDefaultSecret() {
		log.Warn().Msg("JWT_SECRET is the default value, set it before deploying")
	}
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:     c.JWTSigningAlg,
		Secret:        c.JWTSecret,
		PrivateKeyPEM: c.JWTPrivateKeyPEM,
		KeyID:         c.JWTKeyID,
	})
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(signer, token.WithIssuerName(c.JWTIssuer))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sessionService, err := auth.NewSessionService(
		auth.Repos{Users: userRepo, Sessions: cache},
		users.NewBcryptHasher(),
		issuer,
		auth.WithLifetimes(c),
		auth.WithLogger(log.Logger.With().Str("component", "sessions").Logger()),
		auth.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(userRepo, users.WithSessionInvalidator(sessionService))
	if err != nil {
		return nil, err
	}

	srv, err := server.New(c, server.Services{
		Sessions: sessionService,
		Users:    userService,
		Tokens:   issuer,
	},
		server.WithMetrics(m, reg),
		server.WithHealthCheck("database", db.PingContext),
		server.WithHealthCheck("cache", cache.Ping),
	)
	if err != nil {
		return nil, err
	}
	a.handler = srv
	return a, nil
}

func (a *app) newSessionCache(ctx context.Context, c config.Config) (sessions.Cache, error) {
	switch c.GetCacheBackend() {
	case config.CacheBackendMemory:
		cache := memcache.New(memcache.WithDefaultTTL(c.GetCacheDefaultTTL()))
		janitorCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		go cache.Run(janitorCtx, cacheCleanupInterval)
		a.closers = append(a.closers, func() error {
			stop()
			return nil
		})
		log.Warn().Msg("using in-memory session cache, sessions do not survive a restart")
		return cache, nil
	default:
		client := rediscache.NewClient(rediscache.ClientConfig{
			Addr:     c.GetRedisAddr(),
			Username: c.RedisUsername,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		cache, err := rediscache.New(client, rediscache.WithDefaultTTL(c.GetCacheDefaultTTL()))
		if err != nil {
			return nil, err
		}
		if err := cache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", c.GetRedisAddr()).Msg("redis not reachable yet")
		}
		return cache, nil
	}
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Err(err).Msg("close")
		}
	}
	a.closers = nil
}
