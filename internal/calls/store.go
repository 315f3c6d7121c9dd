package calls

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("calls: session not found")

	// ErrConflict is returned when a create would violate external call
	// id uniqueness.
	ErrConflict = errors.New("calls: external call id already exists")

	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("calls: invalid argument")

	// ErrCallCapExceeded is returned when the per-user concurrent call
	// cap rejects a new call.
	ErrCallCapExceeded = errors.New("calls: concurrent call cap exceeded")
)

// Store is the call record store: keyed lookup of sessions by internal
// id, external call id, and provider call-control id.
//
// Update performs a shallow merge and does not validate status
// transitions; strict checking is a service-level opt-in. The one
// invariant stores do enforce is that ProviderCallID is write-once.
type Store interface {
	Create(ctx context.Context, s CallSession) (CallSession, error)
	GetByID(ctx context.Context, id string) (CallSession, error)
	GetByExternalID(ctx context.Context, externalID string) (CallSession, error)
	GetByProviderID(ctx context.Context, providerID string) (CallSession, error)

	// ListByOwner returns the owner's sessions ordered by StartedAt
	// descending.
	ListByOwner(ctx context.Context, userID string) ([]CallSession, error)

	Update(ctx context.Context, id string, f UpdateFields) (CallSession, error)
}
