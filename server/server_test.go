package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/auth/sessions"
	"github.com/jrsteele09/go-session-auth/auth/sessions/memcache"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/metrics"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin   = "https://app.example.com"
	testEmail    = "john@email.com"
	testPassword = "123456"
)

type testFixture struct {
	userRepo *fakeuserrepo.FakeUserRepo
	cache    *memcache.Cache
	issuer   *token.Issuer
	registry *prometheus.Registry
	server   *server.Server
}

func testConfig() config.Config {
	return config.Config{
		Env:               "TEST",
		AllowedOrigins:    []string{testOrigin},
		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}
}

func setupTestFixture(t *testing.T, cfg config.Config, options ...server.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		cache:    memcache.New(),
		registry: prometheus.NewRegistry(),
	}
	issuer, err := token.NewIssuer(token.NewHMACSigner("1234"))
	require.NoError(t, err)
	f.issuer = issuer

	m := metrics.New(f.registry)
	sessionService, err := auth.NewSessionService(
		auth.Repos{Users: f.userRepo, Sessions: f.cache},
		users.NewBcryptHasher(),
		issuer,
		auth.WithMetrics(m),
	)
	require.NoError(t, err)
	userService, err := users.NewService(f.userRepo, users.WithSessionInvalidator(sessionService))
	require.NoError(t, err)

	options = append([]server.Option{server.WithMetrics(m, f.registry)}, options...)
	f.server, err = server.New(cfg, server.Services{
		Sessions: sessionService,
		Users:    userService,
		Tokens:   issuer,
	}, options...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) createUser(t *testing.T) *users.User {
	t.Helper()

	rec := f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
		"name":     "John Doe",
		"email":    testEmail,
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return &u
}

func (f *testFixture) login(t *testing.T) *sessions.Session {
	t.Helper()

	rec := f.do(t, http.MethodPost, server.RouteSessionCreate, "", map[string]string{
		"email":    testEmail,
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeSession(t, rec)
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) *sessions.Session {
	t.Helper()

	var s sessions.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	return &s
}

func requireErrorBody(t *testing.T, rec *httptest.ResponseRecorder, status int, kind, message string) {
	t.Helper()

	require.Equal(t, status, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, kind, body["error"])
	require.Equal(t, message, body["message"])
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := server.New(testConfig(), server.Services{})
	require.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	u := f.createUser(t)
	require.Equal(t, testEmail, u.Email)
	require.True(t, u.Active)

	s := f.login(t)
	require.Equal(t, "John Doe", s.Name)
	require.Equal(t, testEmail, s.Email)

	claims, err := f.issuer.Verify(s.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, u.ID, id)

	// a second login returns the cached session unchanged
	again := f.login(t)
	require.Equal(t, s, again)

	rec := f.do(t, http.MethodPost, server.RouteSessionRefresh, s.AccessToken, map[string]string{"refreshToken": s.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeSession(t, rec)
	require.NotEqual(t, s.RefreshToken, rotated.RefreshToken)

	// the old refresh token is no longer live
	rec = f.do(t, http.MethodPost, server.RouteSessionRefresh, rotated.AccessToken, map[string]string{"refreshToken": s.RefreshToken})
	requireErrorBody(t, rec, http.StatusUnauthorized, "unauthorized", "invalid refresh token")

	rec = f.do(t, http.MethodDelete, server.RouteSession, rotated.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, f.cache.Len())

	rec = f.do(t, http.MethodPost, server.RouteSessionRefresh, rotated.AccessToken, map[string]string{"refreshToken": rotated.RefreshToken})
	requireErrorBody(t, rec, http.StatusUnauthorized, "unauthorized", "invalid refresh token")
}

func TestCreateSession_Rejections(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	f.createUser(t)

	tests := []struct {
		name string
		body any
	}{
		{"wrong password", map[string]string{"email": testEmail, "password": "nope"}},
		{"unknown email", map[string]string{"email": "nobody@email.com", "password": testPassword}},
		{"empty body", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, server.RouteSessionCreate, "", tt.body)
			requireErrorBody(t, rec, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteSessionCreate, bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "invalid request body")
	})
}

func TestRequireAuth(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	u := f.createUser(t)
	subject := strconv.FormatInt(u.ID, 10)

	expired, err := token.NewIssuer(token.NewHMACSigner("1234"), token.WithNowTime(func() time.Time {
		return time.Now().Add(-24 * time.Hour)
	}))
	require.NoError(t, err)
	staleToken, err := expired.Sign(subject, time.Hour)
	require.NoError(t, err)

	otherKey, err := token.NewIssuer(token.NewHMACSigner("other"))
	require.NoError(t, err)
	forged, err := otherKey.Sign(subject, time.Hour)
	require.NoError(t, err)

	nonNumeric, err := f.issuer.Sign("john", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + staleToken},
		{"wrong key", "Bearer " + forged},
		{"non numeric subject", "Bearer " + nonNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, server.RouteSession, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)
			requireErrorBody(t, rec, http.StatusUnauthorized, "unauthorized", "invalid token")
		})
	}

	t.Run("scheme is case insensitive", func(t *testing.T) {
		valid, err := f.issuer.Sign(subject, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodDelete, server.RouteSession, nil)
		req.Header.Set("Authorization", "bearer "+valid)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestUserRoutes(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	u := f.createUser(t)
	s := f.login(t)
	userPath := "/users/" + strconv.FormatInt(u.ID, 10)

	t.Run("create duplicate", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
			"name": "Other", "email": testEmail, "password": "x",
		})
		requireErrorBody(t, rec, http.StatusConflict, "conflict", "user with this email already exists")
	})

	t.Run("create invalid", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
			"name": "Other", "email": "not-an-email", "password": "x",
		})
		requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "email must be a valid email")
	})

	t.Run("update requires auth", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, userPath, "", map[string]string{"name": "Johnny"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("update name", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, userPath, s.AccessToken, map[string]string{"name": "Johnny"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated users.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		require.Equal(t, "Johnny", updated.Name)
		require.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("update nothing", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, userPath, s.AccessToken, map[string]string{})
		requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "at least one field must be updated")
	})

	t.Run("update unknown", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/users/99", s.AccessToken, map[string]string{"name": "x"})
		requireErrorBody(t, rec, http.StatusNotFound, "not_found", "user not found")
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/users/abc/disable", s.AccessToken, nil)
		requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "invalid user id")
	})

	t.Run("disable then enable", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, userPath+"/disable", s.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var disabled users.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disabled))
		require.False(t, disabled.Active)

		rec = f.do(t, http.MethodPost, server.RouteSessionRefresh, s.AccessToken, map[string]string{"refreshToken": s.RefreshToken})
		requireErrorBody(t, rec, http.StatusUnauthorized, "unauthorized", "invalid refresh token")

		rec = f.do(t, http.MethodPatch, userPath+"/enable", s.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var enabled users.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enabled))
		require.True(t, enabled.Active)
	})
}

func TestJWKS(t *testing.T) {
	t.Run("symmetric signer", func(t *testing.T) {
		f := setupTestFixture(t, testConfig())
		rec := f.do(t, http.MethodGet, server.RouteWellKnownJWKS, "", nil)
		requireErrorBody(t, rec, http.StatusNotFound, "not_found", "no public signing keys")
	})

	t.Run("asymmetric signer", func(t *testing.T) {
		signer, err := token.NewSigner(token.SignerConfig{Algorithm: token.AlgES256, KeyID: "k1"})
		require.NoError(t, err)
		issuer, err := token.NewIssuer(signer)
		require.NoError(t, err)

		srv, err := server.New(testConfig(), server.Services{
			Sessions: stubSessions{},
			Users:    stubUsers{},
			Tokens:   issuer,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var set token.JWKS
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
		require.Len(t, set.Keys, 1)
		require.Equal(t, "k1", set.Keys[0].Kid)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		f := setupTestFixture(t, testConfig(), server.WithHealthCheck("cache", memcache.New().Ping))
		rec := f.do(t, http.MethodGet, server.RouteHealth, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok","checks":{"cache":"ok"}}`, rec.Body.String())
	})

	t.Run("degraded", func(t *testing.T) {
		f := setupTestFixture(t, testConfig(),
			server.WithHealthCheck("cache", memcache.New().Ping),
			server.WithHealthCheck("database", func(context.Context) error { return errors.New("connection refused") }),
		)
		rec := f.do(t, http.MethodGet, server.RouteHealth, "", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.JSONEq(t, `{"status":"degraded","checks":{"cache":"ok","database":"unavailable"}}`, rec.Body.String())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	f.createUser(t)
	f.login(t)

	rec := f.do(t, http.MethodGet, server.RouteMetrics, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `session_auth_http_requests_total{route="POST /session/create",status="2xx"} 1`)
	require.Contains(t, body, `session_auth_session_operations_total{operation="create",result="issued"} 1`)
}

func TestRoutes(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	routes := f.server.Routes()
	require.Contains(t, routes, "POST "+server.RouteSessionCreate)
	require.Contains(t, routes, "DELETE "+server.RouteSession)
	require.Contains(t, routes, "GET "+server.RouteMetrics)
}

func TestEmailChangeReleasesCachedSession(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	alice := f.createUser(t)
	aliceSession := f.login(t)

	rec := f.do(t, http.MethodPut, "/users/"+strconv.FormatInt(alice.ID, 10), aliceSession.AccessToken,
		map[string]string{"email": "alice@email.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
		"name": "Bob", "email": testEmail, "password": "bobs-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bob users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bob))

	rec = f.do(t, http.MethodPost, server.RouteSessionCreate, "", map[string]string{
		"email": testEmail, "password": "bobs-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bobSession := decodeSession(t, rec)
	require.Equal(t, "Bob", bobSession.Name)
	require.NotEqual(t, aliceSession.AccessToken, bobSession.AccessToken)

	claims, err := f.issuer.Verify(bobSession.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, bob.ID, id)
}

func TestRequestBodyLimit(t *testing.T) {
	f := setupTestFixture(t, testConfig())

	rec := f.do(t, http.MethodPost, server.RouteSessionCreate, "", map[string]string{
		"email":    strings.Repeat("a", 70<<10) + "@email.com",
		"password": testPassword,
	})
	requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "request body too large")

	rec = f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
		"name": strings.Repeat("n", 70<<10), "email": "n@email.com", "password": "x",
	})
	requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "request body too large")
}

func TestCreateUser_PasswordTooLong(t *testing.T) {
	f := setupTestFixture(t, testConfig())

	rec := f.do(t, http.MethodPost, server.RouteUsersCreate, "", map[string]string{
		"name": "John Doe", "email": testEmail, "password": strings.Repeat("p", 80),
	})
	requireErrorBody(t, rec, http.StatusBadRequest, "bad_request", "password must be at most 72 bytes")
}

func TestRequireAuth_StoresClaims(t *testing.T) {
	f := setupTestFixture(t, testConfig())
	raw, err := f.issuer.Sign("42", time.Hour)
	require.NoError(t, err)
	issued, err := f.issuer.Verify(raw)
	require.NoError(t, err)

	var (
		gotID     int64
		gotClaims *token.Claims
	)
	handler := f.server.RequireAuth()(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		gotID, ok = server.UserIDFromContext(r.Context())
		require.True(t, ok)
		gotClaims, ok = server.ClaimsFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(42), gotID)
	require.Equal(t, issued.ID, gotClaims.ID)
	require.NotEmpty(t, gotClaims.ID)

	_, ok := server.ClaimsFromContext(context.Background())
	require.False(t, ok)
}
