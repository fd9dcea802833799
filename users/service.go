package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/pkg/errors"
)

const (
	defaultListLimit = 50

	// bcrypt only reads the first 72 bytes of a password
	maxPasswordBytes = 72
)

type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,bcryptlen"`
}

// UpdateUserRequest carries the optional fields of an update. Empty values
// are treated as not supplied.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// SessionInvalidator drops whatever session state is cached for an email
type SessionInvalidator interface {
	InvalidateSessions(ctx context.Context, email string) error
}

// Service implements the account operations on top of a UserRepo
type Service struct {
	repo        UserRepo
	hasher      PasswordHasher
	invalidator SessionInvalidator
	validate    *validator.Validate
}

type ServiceOption func(*Service)

// WithHasher replaces the default bcrypt hasher
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithSessionInvalidator makes Update drop the sessions cached under an
// email the account is moving away from
func WithSessionInvalidator(inv SessionInvalidator) ServiceOption {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func NewService(repo UserRepo, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] UserRepo is required")
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	}); err != nil {
		return nil, errors.Wrap(err, "[NewService] register validation")
	}
	s := &Service{
		repo:     repo,
		hasher:   NewBcryptHasher(),
		validate: validate,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.hasher == nil {
		return nil, errors.New("[NewService] PasswordHasher is required")
	}
	return s, nil
}

// Create registers a new active account. The returned user never carries
// the password hash.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return nil, apperrors.ErrUserAlreadyExists
	case !apperrors.Is(err, apperrors.ErrUserNotFound):
		return nil, errors.Wrap(err, "[Create] lookup email")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPasswordHash, err)
	}

	user := &User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUserSave, err)
	}
	return sanitized(user), nil
}

// Update changes the name and/or email of an existing account
func (s *Service) Update(ctx context.Context, id int64, req UpdateUserRequest) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(utils.Value(req.Name))
	email := strings.TrimSpace(utils.Value(req.Email))
	if name == "" && email == "" {
		return nil, apperrors.ErrNothingToUpdate
	}
	if email != "" {
		if err := s.validateRequest(UpdateUserRequest{Email: &email}); err != nil {
			return nil, err
		}
		owner, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && owner.ID != id:
			return nil, apperrors.ErrEmailInUse
		case err != nil && !apperrors.Is(err, apperrors.ErrUserNotFound):
			return nil, errors.Wrap(err, "[Update] lookup email")
		}
		if email != user.Email && s.invalidator != nil {
			// sessions are cached by email
			if err := s.invalidator.InvalidateSessions(ctx, user.Email); err != nil {
				return nil, errors.Wrap(err, "[Update] invalidate sessions")
			}
		}
		user.Email = email
	}
	if name != "" {
		user.Name = name
	}

	return s.save(ctx, user)
}

// Enable marks an account active so it can authenticate again
func (s *Service) Enable(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, true)
}

// Disable marks an account inactive. Existing cached sessions are left to
// expire; new logins and refreshes fail immediately.
func (s *Service) Disable(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) List(ctx context.Context, offset, limit int) ([]*User, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	list, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[List]")
	}
	out := make([]*User, 0, len(list))
	for _, u := range list {
		out = append(out, sanitized(u))
	}
	return out, nil
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Active = active
	return s.save(ctx, user)
}

func (s *Service) save(ctx context.Context, user *User) (*User, error) {
	if err := s.repo.Update(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) || apperrors.Is(err, apperrors.ErrEmailInUse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUserSave, err)
	}
	return sanitized(user), nil
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "[validateRequest]")
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "email":
			messages = append(messages, field+" must be a valid email")
		case "bcryptlen":
			messages = append(messages, fmt.Sprintf("%s must be at most %d bytes", field, maxPasswordBytes))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return apperrors.New(apperrors.ErrBadRequest, strings.Join(messages, "; "))
}

func sanitized(u *User) *User {
	cp := *u
	cp.PasswordHash = ""
	return &cp
}
