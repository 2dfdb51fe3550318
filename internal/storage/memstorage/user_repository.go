package memstorage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/keywarden/keywarden/internal/domain/user"
)

type UserRepository struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]*user.User),
	}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	cp.Keys = append([]string(nil), u.Keys...)
	return &cp, nil
}

func (r *UserRepository) AppendKey(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		u = &user.User{UserID: userID}
		r.users[userID] = u
	}
	u.Keys = append(u.Keys, token)
	return nil
}

func (r *UserRepository) RecordHwidReset(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.HwidLastResetAt = sql.NullTime{Time: at, Valid: true}
	u.HwidResetCount++
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}
