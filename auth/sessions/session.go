package sessions

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	sessionKeyPrefix      = "session:"
	refreshTokenKeyPrefix = "refreshToken:"
)

// Session is the payload handed to a client after login or refresh. It is
// cached as JSON under SessionKey(email).
type Session struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionKey is the cache key holding the session payload for email
func SessionKey(email string) string {
	return sessionKeyPrefix + email
}

// RefreshTokenKey is the cache key holding the live refresh token for email
func RefreshTokenKey(email string) string {
	return refreshTokenKeyPrefix + email
}

func (s *Session) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "[Session.Encode]")
	}
	return string(b), nil
}

func DecodeSession(raw string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, errors.Wrap(err, "[DecodeSession]")
	}
	if s.Email == "" || s.AccessToken == "" || s.RefreshToken == "" {
		return nil, errors.New("[DecodeSession] incomplete session payload")
	}
	return &s, nil
}
