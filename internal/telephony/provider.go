package telephony

import (
	"context"
	"errors"
	"fmt"
)

// CallProvider is the provider-agnostic call-control interface used by
// business logic.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; raw provider payloads
//   stay inside this package.
// - No retries: a single failed attempt surfaces immediately to the
//   caller.
type CallProvider interface {
	Name() string

	// Initiate places an outbound call and returns the provider's
	// call-control id.
	Initiate(ctx context.Context, from, to string) (string, error)

	Answer(ctx context.Context, providerCallID string) error
	Hangup(ctx context.Context, providerCallID string) error
	SetHold(ctx context.Context, providerCallID string, hold bool) error
	SetMute(ctx context.Context, providerCallID string, mute bool) error
	Transfer(ctx context.Context, providerCallID, to string) error

	// Bridge joins two provider call legs.
	Bridge(ctx context.Context, providerCallID, otherCallID string) error
}

// ErrNotConfigured is returned when the adapter has no API credential.
var ErrNotConfigured = errors.New("telephony: provider credentials not configured")

// UpstreamError is a non-success response from the provider API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("telephony: upstream API error %d: %s", e.Status, e.Body)
}

// TransportError means the network call itself could not complete.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telephony: %s transport failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
