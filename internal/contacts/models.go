package contacts

import (
	"context"
	"errors"
)

// Contact is a simple owner-scoped address book entry.
type Contact struct {
	ID          string `json:"id" db:"id"`
	OwnerUserID string `json:"userId" db:"user_id"`
	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phoneNumber" db:"phone_number"`
	Company     string `json:"company,omitempty" db:"company"`
	Email       string `json:"email,omitempty" db:"email"`
}

var (
	ErrNotFound        = errors.New("contacts: not found")
	ErrInvalidArgument = errors.New("contacts: invalid argument")
)

type Repo interface {
	Create(ctx context.Context, c Contact) (Contact, error)
	ListByOwner(ctx context.Context, userID string) ([]Contact, error)
}
