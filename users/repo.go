package users

import "context"

// UserRepo is the credential store. Lookups return errors.ErrUserNotFound
// when no row matches; the Active variants also treat inactive rows as missing.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByID(ctx context.Context, id int64) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
}
