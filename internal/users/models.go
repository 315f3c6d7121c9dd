package users

import (
	"context"
	"errors"
)

// User is an account that owns calls and contacts.
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`

	// Password is never serialized.
	Password string `json:"-" db:"password"`
}

var (
	ErrNotFound = errors.New("users: not found")
	ErrConflict = errors.New("users: username already exists")
)

type Repo interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}
