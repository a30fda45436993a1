package fakeuserrepo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/mindcraft-auth/users"
)

var _ users.Store = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[int64]*users.User
	emailIds map[string]int64 // lower-cased email to user id
	nextID   int64
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[int64]*users.User),
		emailIds: make(map[string]int64),
	}
}

func (ur *FakeUserRepo) FindByID(ctx context.Context, id int64) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (ur *FakeUserRepo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *ur.users[id]
	return &copied, nil
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := ur.emailIds[email]; ok {
		return users.ErrDuplicateEmail
	}
	ur.nextID++
	user.ID = ur.nextID
	user.Email = email
	user.CreatedAt = time.Now().UTC()

	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[email] = user.ID
	return nil
}

func (ur *FakeUserRepo) UpdateTwoFactor(ctx context.Context, id int64, secret string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.TwoFactorSecret = secret
	u.TwoFactorEnabled = enabled && secret != ""
	return nil
}
