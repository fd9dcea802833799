package fakeuserrepo

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory UserRepo for tests. It stores copies so
// callers cannot mutate rows behind its back.
type FakeUserRepo struct {
	users    map[int64]*users.User
	emailIds map[string]int64 // email to user id
	nextID   int64
	lock     sync.RWMutex

	// FailWrites makes Create and Update return this error when set
	FailWrites error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[int64]*users.User),
		emailIds: make(map[string]int64),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.FailWrites != nil {
		return ur.FailWrites
	}
	if _, ok := ur.emailIds[user.Email]; ok {
		return apperrors.ErrUserAlreadyExists
	}
	if user.ID == 0 {
		ur.nextID++
		user.ID = ur.nextID
	} else if user.ID > ur.nextID {
		ur.nextID = user.ID
	}
	cp := *user
	ur.users[user.ID] = &cp
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.FailWrites != nil {
		return ur.FailWrites
	}
	existing, ok := ur.users[user.ID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	if id, taken := ur.emailIds[user.Email]; taken && id != user.ID {
		return apperrors.ErrEmailInUse
	}
	delete(ur.emailIds, existing.Email)
	cp := *user
	ur.users[user.ID] = &cp
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id int64) (*users.User, error) {
	return ur.get(id, false)
}

func (ur *FakeUserRepo) GetActiveByID(_ context.Context, id int64) (*users.User, error) {
	return ur.get(id, true)
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	return ur.getByEmail(email, false)
}

func (ur *FakeUserRepo) GetActiveByEmail(_ context.Context, email string) (*users.User, error) {
	return ur.getByEmail(email, true)
}

func (ur *FakeUserRepo) List(_ context.Context, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		cp := *v
		userList = append(userList, &cp)
	}
	sort.Slice(userList, func(i, j int) bool {
		return userList[i].ID < userList[j].ID
	})

	if offset >= len(userList) {
		return []*users.User{}, nil
	}
	end := offset + limit
	if end > len(userList) {
		end = len(userList)
	}
	return userList[offset:end], nil
}

func (ur *FakeUserRepo) getByEmail(email string, activeOnly bool) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.emailIds[email]
	ur.lock.RUnlock()
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.get(id, activeOnly)
}

func (ur *FakeUserRepo) get(id int64, activeOnly bool) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok || (activeOnly && !u.Active) {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
