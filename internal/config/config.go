package config

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config holds the runtime configuration. It is loaded once at process start
// and passed down; nothing below cmd/ reads the environment directly.
type Config struct {
	Env      string `env:"ENV,default=DEV"`
	AppName  string `env:"APP_NAME,default=Go Session Auth"`
	Addr     string `env:"ADDR,default=:8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	JWTSecret        string        `env:"JWT_SECRET,default=default-secret"`
	JWTSigningAlg    string        `env:"JWT_SIGNING_ALG,default=HS256"`
	JWTPrivateKeyPEM string        `env:"JWT_PRIVATE_KEY"`
	JWTKeyID         string        `env:"JWT_KEY_ID"`
	JWTIssuer        string        `env:"JWT_ISSUER"`
	AccessTokenTTL   time.Duration `env:"JWT_EXPIRES_IN,default=6h"`
	SessionTTL       time.Duration `env:"SESSION_TTL,default=6h"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	CacheBackend    string        `env:"CACHE_BACKEND,default=redis"`
	CacheDefaultTTL time.Duration `env:"CACHE_TTL,default=168h"`
	RedisHost       string        `env:"REDIS_HOST,default=localhost"`
	RedisPort       int           `env:"REDIS_PORT,default=6379"`
	RedisUsername   string        `env:"REDIS_USERNAME"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB,default=0"`

	DBDriver string `env:"DB_DRIVER,default=sqlite"`
	DBDSN    string `env:"DB_DSN,default=file:authd.db?cache=shared"`

	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED,default=true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS,default=20"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var (
	_ EnvConfig     = Config{}
	_ SessionConfig = Config{}
	_ CorsConfig    = Config{}
	_ CacheConfig   = Config{}
)

// Load reads a .env file if one exists and then populates Config from the
// environment. Tests pass a lookuper to avoid touching the process env.
func Load(ctx context.Context, lookuper ...envconfig.Lookuper) (Config, error) {
	var cfg Config
	c := &envconfig.Config{Target: &cfg}
	if len(lookuper) > 0 {
		c.Lookuper = lookuper[0]
	} else {
		_ = godotenv.Load()
		c.Lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, c); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] envconfig")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that envconfig cannot express as tags
func (c Config) Validate() error {
	switch c.JWTSigningAlg {
	case "HS256", "RS256", "ES256":
	default:
		return errors.Errorf("[config] unsupported JWT_SIGNING_ALG %q", c.JWTSigningAlg)
	}
	switch c.CacheBackend {
	case CacheBackendRedis, CacheBackendMemory:
	default:
		return errors.Errorf("[config] unsupported CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("[config] unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AccessTokenTTL <= 0 || c.SessionTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("[config] token and session lifetimes must be positive")
	}
	if c.UsesDefaultSecret() && c.GetEnv() != "DEV" {
		return errors.Errorf("[config] JWT_SECRET must be set when ENV is %s", c.GetEnv())
	}
	return nil
}

// UsesDefaultSecret reports whether the HMAC secret was left at its default
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSigningAlg == "HS256" && c.JWTSecret == "default-secret"
}
