package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/rs/zerolog/log"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxRequestBodySize = 64 << 10
)

var (
	errInvalidBody   = apperrors.New(apperrors.ErrBadRequest, "invalid request body")
	errBodyTooLarge  = apperrors.New(apperrors.ErrBadRequest, "request body too large")
	errInvalidUserID = apperrors.New(apperrors.ErrBadRequest, "invalid user id")
	errNoSigningKeys = apperrors.New(apperrors.ErrNotFound, "no public signing keys")
)

type createSessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshSessionRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CreateSessionHandler exchanges email and password for a session
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		session, err := s.services.Sessions.CreateSession(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

// RefreshSessionHandler rotates the caller's tokens
func (s *Server) RefreshSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeError(w, apperrors.ErrInvalidToken)
			return
		}
		var req refreshSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		session, err := s.services.Sessions.RefreshSession(r.Context(), userID, req.RefreshToken)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// EndSessionHandler logs the caller out
func (s *Server) EndSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			writeError(w, apperrors.ErrInvalidToken)
			return
		}
		if err := s.services.Sessions.EndSession(r.Context(), userID); err != nil {
			writeError(w, err)
			return
		}
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			log.Info().Int64("user_id", userID).Str("jti", claims.ID).Msg("session ended")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.CreateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		user, err := s.services.Users.Create(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := userIDFromPath(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req users.UpdateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		user, err := s.services.Users.Update(r.Context(), id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) DisableUserHandler() http.HandlerFunc {
	return s.userStateHandler(s.services.Users.Disable)
}

func (s *Server) EnableUserHandler() http.HandlerFunc {
	return s.userStateHandler(s.services.Users.Enable)
}

func (s *Server) userStateHandler(apply func(context.Context, int64) (*users.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := userIDFromPath(r)
		if err != nil {
			writeError(w, err)
			return
		}
		user, err := apply(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// JWKSHandler publishes the verification keys of an asymmetric signer
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, ok, err := s.services.Tokens.JWKS()
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, errNoSigningKeys)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, set)
	}
}

// HealthHandler runs every registered check and reports 503 if any fails
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.health))}
		status := http.StatusOK
		for name, check := range s.health {
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Str("check", name).Msg("health check failed")
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}

func userIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidUserID
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errInvalidBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError reports err with the status of its kind. Internal causes are
// logged and never written to the response.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Err(err).Msg("request failed")
	}
	writeJSONError(w, status, apperrors.KindName(err), apperrors.PublicMessage(err))
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}
