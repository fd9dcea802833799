package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/auth/sessions"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/metrics"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// SessionManager is the session lifecycle as seen by the HTTP layer
type SessionManager interface {
	CreateSession(ctx context.Context, email, password string) (*sessions.Session, error)
	RefreshSession(ctx context.Context, userID int64, refreshToken string) (*sessions.Session, error)
	EndSession(ctx context.Context, userID int64) error
}

type UserManager interface {
	Create(ctx context.Context, req users.CreateUserRequest) (*users.User, error)
	Update(ctx context.Context, id int64, req users.UpdateUserRequest) (*users.User, error)
	Enable(ctx context.Context, id int64) (*users.User, error)
	Disable(ctx context.Context, id int64) (*users.User, error)
}

// TokenVerifier authenticates bearer tokens and publishes verification keys
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
	JWKS() (*token.JWKS, bool, error)
}

// Services holds the domain services the routes call into
type Services struct {
	Sessions SessionManager
	Users    UserManager
	Tokens   TokenVerifier
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	health   map[string]HealthCheck
}

type Option func(*Server)

// WithMetrics records request metrics into m and serves gatherer on /metrics
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

// WithHealthCheck adds a named dependency check to /healthz
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.health[name] = check
	}
}

func New(cfg config.Config, services Services, options ...Option) (*Server, error) {
	if services.Sessions == nil {
		return nil, errors.New("[Server New] session service is required")
	}
	if services.Users == nil {
		return nil, errors.New("[Server New] user service is required")
	}
	if services.Tokens == nil {
		return nil, errors.New("[Server New] token verifier is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		services: services,
		gatherer: prometheus.DefaultGatherer,
		health:   make(map[string]HealthCheck),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

// Routes returns the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// NewHTTPServer wraps h with the timeouts used in production
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Msgf("[%-16s] %s", colourMethod(method), path)
	}
}
