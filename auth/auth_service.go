package auth

import (
	"context"
	"crypto/subtle"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/auth/sessions"
	"github.com/jrsteele09/go-session-auth/internal/config"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/metrics"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/jrsteele09/go-session-auth/auth"

// TokenSigner mints access tokens. *token.Issuer satisfies it.
type TokenSigner interface {
	Sign(subject string, ttl time.Duration) (string, error)
}

// Repos holds the stores the SessionService reads and writes
type Repos struct {
	Users    users.UserRepo // credential store, read only
	Sessions sessions.Cache // session payloads and refresh tokens
}

// SessionService implements the session lifecycle: login, refresh token
// rotation and logout.
type SessionService struct {
	repos           Repos
	verifier        users.PasswordVerifier
	signer          TokenSigner
	lifetimes       config.SessionConfig
	newRefreshToken func() string
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer

	// collapses concurrent logins for the same email
	logins singleflight.Group
}

type SessionServiceOption func(*SessionService)

// WithLifetimes overrides config.DefaultSessions()
func WithLifetimes(lifetimes config.SessionConfig) SessionServiceOption {
	return func(s *SessionService) {
		s.lifetimes = lifetimes
	}
}

// WithRefreshTokenGenerator replaces the UUIDv4 generator (primarily for testing)
func WithRefreshTokenGenerator(gen func() string) SessionServiceOption {
	return func(s *SessionService) {
		s.newRefreshToken = gen
	}
}

func WithLogger(logger zerolog.Logger) SessionServiceOption {
	return func(s *SessionService) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) SessionServiceOption {
	return func(s *SessionService) {
		s.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) SessionServiceOption {
	return func(s *SessionService) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// NewSessionService initializes a SessionService with required dependencies.
// Optional configuration can be provided via options.
func NewSessionService(
	repos Repos,
	verifier users.PasswordVerifier,
	signer TokenSigner,
	options ...SessionServiceOption,
) (*SessionService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewSessionService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewSessionService] Sessions cache is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewSessionService] password verifier is required")
	}
	if signer == nil {
		return nil, errors.New("[NewSessionService] token signer is required")
	}

	s := &SessionService{
		repos:           repos,
		verifier:        verifier,
		signer:          signer,
		lifetimes:       config.DefaultSessions(),
		newRefreshToken: uuid.NewString,
		logger:          zerolog.Nop(),
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

type loginResult struct {
	session *sessions.Session
	cached  bool
}

// CreateSession authenticates email/password against an active account. A
// live cached session is returned unchanged; otherwise new tokens are
// minted and cached.
func (s *SessionService) CreateSession(ctx context.Context, email, password string) (*sessions.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.CreateSession")
	defer span.End()

	user, err := s.repos.Users.GetActiveByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return nil, s.reject(span, opCreate, InvalidCredentialsErr, "no active user")
		}
		return nil, s.fail(span, opCreate, errors.Wrap(err, "[CreateSession] user lookup"))
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))

	if !s.verifier.Verify(password, user.PasswordHash) {
		return nil, s.reject(span, opCreate, InvalidCredentialsErr, "password mismatch")
	}

	// The leader's cancellation must not fail the callers sharing its result
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.logins.Do(email, func() (any, error) {
		return s.loadOrIssue(shared, user)
	})
	if err != nil {
		return nil, s.fail(span, opCreate, err)
	}

	res := v.(loginResult)
	result := metrics.ResultIssued
	if res.cached {
		result = metrics.ResultCached
	}
	span.SetAttributes(attribute.Bool("session.cached", res.cached))
	s.metrics.ObserveSession(opCreate, result)
	s.logger.Debug().Int64("user_id", user.ID).Bool("cached", res.cached).Msg("session created")

	sess := *res.session
	return &sess, nil
}

// RefreshSession rotates the refresh token of the caller. refreshToken must
// equal the live value cached for the caller's email.
func (s *SessionService) RefreshSession(ctx context.Context, userID int64, refreshToken string) (*sessions.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.RefreshSession",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if refreshToken == "" {
		return nil, s.reject(span, opRefresh, InvalidRefreshTokenErr, "empty refresh token")
	}

	user, err := s.repos.Users.GetActiveByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return nil, s.reject(span, opRefresh, InvalidRefreshTokenErr, "no active user")
		}
		return nil, s.fail(span, opRefresh, errors.Wrap(err, "[RefreshSession] user lookup"))
	}

	stored, found, err := s.repos.Sessions.Get(ctx, sessions.RefreshTokenKey(user.Email))
	if err != nil {
		return nil, s.fail(span, opRefresh, errors.Wrap(err, "[RefreshSession] cache get"))
	}
	if !found {
		return nil, s.reject(span, opRefresh, InvalidRefreshTokenErr, "no live refresh token")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return nil, s.reject(span, opRefresh, InvalidRefreshTokenErr, "refresh token mismatch")
	}

	sess, err := s.issue(ctx, user)
	if err != nil {
		return nil, s.fail(span, opRefresh, err)
	}
	s.metrics.ObserveSession(opRefresh, metrics.ResultIssued)
	s.logger.Debug().Int64("user_id", user.ID).Msg("session refreshed")
	return sess, nil
}

// EndSession drops the cached session and refresh token of the caller.
// Ending a session that does not exist is not an error.
func (s *SessionService) EndSession(ctx context.Context, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "SessionService.EndSession",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return s.reject(span, opEnd, InvalidCredentialsErr, "unknown user")
		}
		return s.fail(span, opEnd, errors.Wrap(err, "[EndSession] user lookup"))
	}

	if err := sessions.Invalidate(ctx, s.repos.Sessions, user.Email); err != nil {
		return s.fail(span, opEnd, errors.Wrap(err, "[EndSession] cache delete"))
	}
	s.metrics.ObserveSession(opEnd, metrics.ResultEnded)
	s.logger.Debug().Int64("user_id", user.ID).Msg("session ended")
	return nil
}

// InvalidateSessions drops the cached session and refresh token stored
// under email. It lets users.Service clear an address an account gives up.
func (s *SessionService) InvalidateSessions(ctx context.Context, email string) error {
	if err := sessions.Invalidate(ctx, s.repos.Sessions, email); err != nil {
		return errors.Wrap(err, "[InvalidateSessions] cache delete")
	}
	return nil
}

func (s *SessionService) loadOrIssue(ctx context.Context, user *users.User) (loginResult, error) {
	raw, found, err := s.repos.Sessions.Get(ctx, sessions.SessionKey(user.Email))
	if err != nil {
		return loginResult{}, errors.Wrap(err, "[CreateSession] cache get")
	}
	if found {
		sess, err := sessions.DecodeSession(raw)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("discarding undecodable cached session")
		case !ownedBy(sess, user):
			s.logger.Warn().Int64("user_id", user.ID).Msg("discarding cached session issued to another account")
		default:
			return loginResult{session: sess, cached: true}, nil
		}
	}

	sess, err := s.issue(ctx, user)
	if err != nil {
		return loginResult{}, err
	}
	return loginResult{session: sess}, nil
}

// issue mints a new token pair and overwrites both cache entries. The
// session payload is written first; a failed second write is reported but
// not rolled back.
func (s *SessionService) issue(ctx context.Context, user *users.User) (*sessions.Session, error) {
	accessToken, err := s.signer.Sign(strconv.FormatInt(user.ID, 10), s.lifetimes.GetAccessTokenExpiry())
	if err != nil {
		return nil, errors.Wrap(err, "[issue] sign access token")
	}

	sess := &sessions.Session{
		Name:         user.Name,
		Email:        user.Email,
		AccessToken:  accessToken,
		RefreshToken: s.newRefreshToken(),
	}
	payload, err := sess.Encode()
	if err != nil {
		return nil, err
	}

	if err := s.repos.Sessions.Set(ctx, sessions.SessionKey(user.Email), payload, s.lifetimes.GetSessionTTL()); err != nil {
		return nil, errors.Wrap(err, "[issue] cache session")
	}
	if err := s.repos.Sessions.Set(ctx, sessions.RefreshTokenKey(user.Email), sess.RefreshToken, s.lifetimes.GetRefreshTokenTTL()); err != nil {
		return nil, errors.Wrap(err, "[issue] cache refresh token")
	}
	return sess, nil
}

// ownedBy reports whether a cached session was issued to user as it is now.
// A renamed account or an email that changed hands gets a fresh session.
func ownedBy(sess *sessions.Session, user *users.User) bool {
	if sess.Email != user.Email || sess.Name != user.Name {
		return false
	}
	subject, err := token.Subject(sess.AccessToken)
	return err == nil && subject == strconv.FormatInt(user.ID, 10)
}

func (s *SessionService) reject(span trace.Span, op string, err error, reason string) error {
	span.SetStatus(codes.Error, err.Error())
	s.metrics.ObserveSession(op, metrics.ResultRejected)
	s.logger.Debug().Str("operation", op).Str("reason", reason).Msg("session request rejected")
	return err
}

func (s *SessionService) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "internal error")
	s.metrics.ObserveSession(op, metrics.ResultError)
	s.logger.Error().Err(err).Str("operation", op).Msg("session request failed")
	return err
}
