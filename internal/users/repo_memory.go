package users

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory user repository for tests and local
// development.
type MemoryRepo struct {
	mu         sync.Mutex
	users      map[string]User
	byUsername map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:      map[string]User{},
		byUsername: map[string]string{},
	}
}

func (r *MemoryRepo) Create(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[u.Username]; ok {
		return User{}, ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.users[u.ID] = u
	r.byUsername[u.Username] = u.ID
	return u, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}
