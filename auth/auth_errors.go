package auth

import apperrors "github.com/jrsteele09/go-session-auth/internal/errors"

// Errors returned to callers of the session service. Every rejection maps
// to one of these regardless of which check failed.
var (
	InvalidCredentialsErr  = apperrors.ErrInvalidCredentials
	InvalidRefreshTokenErr = apperrors.ErrInvalidRefreshToken
)

const (
	opCreate  = "create"
	opRefresh = "refresh"
	opEnd     = "end"
)
