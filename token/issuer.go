package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/pkg/errors"
)

// Claims are the registered claims carried by an access token. Subject is
// the decimal user id.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ErrInvalidToken
	}
	return id, nil
}

// Issuer signs and verifies access tokens
type Issuer struct {
	signer  Signer
	issuer  string
	nowTime func() time.Time
}

type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim on signed tokens and requires it on verify
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = name
	}
}

// WithNowTime sets the clock used for iat, exp and expiry checks
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	i := &Issuer{signer: signer, nowTime: time.Now}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Sign mints a token for subject that expires after ttl
func (i *Issuer) Sign(subject string, ttl time.Duration) (string, error) {
	now := i.nowTime()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return i.signer.Sign(claims)
}

// Verify checks signature and expiry. Every failure is ErrInvalidToken so
// callers cannot tell why a token was rejected.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.signer.SigningMethod().Alg()}),
		jwt.WithTimeFunc(i.nowTime),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(raw, claims, i.signer.VerificationKey, opts...)
	if err != nil || !t.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// Subject reads the sub claim of a token this service minted without
// checking its signature or expiry. Never use it to authenticate a caller.
func Subject(raw string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", errors.Wrap(err, "[Subject]")
	}
	if claims.Subject == "" {
		return "", errors.New("[Subject] token has no subject")
	}
	return claims.Subject, nil
}

// JWKS returns the published key set, or false for symmetric signers
func (i *Issuer) JWKS() (*JWKS, bool, error) {
	p, ok := i.signer.(JWKSProvider)
	if !ok {
		return nil, false, nil
	}
	set, err := p.JWKS()
	return set, true, err
}
