package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, env map[string]string) *app {
	t.Helper()

	base := map[string]string{
		"ENV":           "TEST",
		"JWT_SECRET":    "test-secret",
		"CACHE_BACKEND": "memory",
		"DB_DSN":        ":memory:",
	}
	for k, v := range env {
		base[k] = v
	}
	c, err := config.Load(context.Background(), envconfig.MapLookuper(base))
	require.NoError(t, err)

	a, err := newApp(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(a *app, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_Health(t *testing.T) {
	a := setupTestApp(t, nil)

	rec := serve(a, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","checks":{"cache":"ok","database":"ok"}}`, rec.Body.String())
}

func TestNewApp_LoginFlow(t *testing.T) {
	a := setupTestApp(t, map[string]string{"JWT_SIGNING_ALG": "ES256", "JWT_KEY_ID": "test-key"})

	rec := serve(a, http.MethodPost, "/users/create", `{"name":"John Doe","email":"john@email.com","password":"123456"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(a, http.MethodPost, "/session/create", `{"email":"john@email.com","password":"123456"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = serve(a, http.MethodPost, "/session/refresh", `{"refreshToken":"`+session.RefreshToken+`"}`, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(a, http.MethodGet, "/.well-known/jwks.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kid":"test-key"`)

	rec = serve(a, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewApp_InvalidPrivateKey(t *testing.T) {
	c, err := config.Load(context.Background(), envconfig.MapLookuper(map[string]string{
		"CACHE_BACKEND":   "memory",
		"DB_DSN":          ":memory:",
		"JWT_SIGNING_ALG": "RS256",
		"JWT_PRIVATE_KEY": "not a pem",
	}))
	require.NoError(t, err)

	_, err = newApp(context.Background(), c)
	require.Error(t, err)
}
