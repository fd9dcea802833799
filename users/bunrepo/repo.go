// Package bunrepo is the SQL credential store, backed by bun. It runs on
// sqlite and postgres.
package bunrepo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type userModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull,unique"`
	Password  string    `bun:"password,notnull"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (m *userModel) toUser() *users.User {
	return &users.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.Password,
		Active:       m.Active,
	}
}

var _ users.UserRepo = (*Repo)(nil)

type Repo struct {
	db      bun.IDB
	nowTime func() time.Time
}

type Option func(*Repo)

// WithNowTime sets the clock used for created_at/updated_at
func WithNowTime(nowFunc func() time.Time) Option {
	return func(r *Repo) {
		r.nowTime = nowFunc
	}
}

func New(db bun.IDB, options ...Option) (*Repo, error) {
	if db == nil {
		return nil, errors.New("[bunrepo.New] db is required")
	}
	r := &Repo{db: db, nowTime: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Migrate creates the users table when it does not exist yet
func Migrate(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*userModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return errors.Wrap(err, "[bunrepo.Migrate]")
}

func (r *Repo) Create(ctx context.Context, user *users.User) error {
	now := r.nowTime().UTC()
	m := &userModel{
		Name:      user.Name,
		Email:     user.Email,
		Password:  user.PasswordHash,
		Active:    user.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.db.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrUserAlreadyExists
		}
		return errors.Wrap(err, "[Repo.Create]")
	}
	user.ID = m.ID
	return nil
}

func (r *Repo) Update(ctx context.Context, user *users.User) error {
	m := &userModel{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Password:  user.PasswordHash,
		Active:    user.Active,
		UpdatedAt: r.nowTime().UTC(),
	}
	res, err := r.db.NewUpdate().
		Model(m).
		Column("name", "email", "active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrEmailInUse
		}
		return errors.Wrap(err, "[Repo.Update]")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*users.User, error) {
	return r.getOne(ctx, "u.id = ?", id, false)
}

func (r *Repo) GetActiveByID(ctx context.Context, id int64) (*users.User, error) {
	return r.getOne(ctx, "u.id = ?", id, true)
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, "u.email = ?", email, false)
}

func (r *Repo) GetActiveByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, "u.email = ?", email, true)
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	var rows []userModel
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("u.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Repo.List]")
	}
	out := make([]*users.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toUser())
	}
	return out, nil
}

func (r *Repo) getOne(ctx context.Context, where string, arg any, activeOnly bool) (*users.User, error) {
	m := new(userModel)
	q := r.db.NewSelect().Model(m).Where(where, arg)
	if activeOnly {
		q = q.Where("u.active = ?", true)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "[Repo.getOne]")
	}
	return m.toUser(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
