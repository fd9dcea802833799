package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every user-facing error unwraps to exactly one of these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")
)

// Error is a user-facing error: Message is safe to show to a caller and Kind
// decides how it is reported.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New creates a user-facing error of the given kind
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Authentication errors
var (
	ErrInvalidCredentials  = New(ErrUnauthorized, "invalid credentials")
	ErrInvalidRefreshToken = New(ErrUnauthorized, "invalid refresh token")
	ErrInvalidToken        = New(ErrUnauthorized, "invalid token")
)

// User errors
var (
	ErrUserNotFound      = New(ErrNotFound, "user not found")
	ErrUserAlreadyExists = New(ErrConflict, "user with this email already exists")
	ErrEmailInUse        = New(ErrConflict, "email already in use")
	ErrNothingToUpdate   = New(ErrBadRequest, "at least one field must be updated")
	ErrUserSave          = New(ErrInternal, "error saving user to database")
	ErrPasswordHash      = New(ErrInternal, "error hashing password")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindName returns the short name of the error's kind.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "internal"
	}
}

// PublicMessage returns the message that may be shown to a caller. Anything
// that is not a user-facing *Error collapses into a generic internal message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
