package calls

import "time"

// CallSession is the authoritative server record of one call attempt,
// from creation to terminal status.
//
// Invariants:
// - ProviderCallID, once set, never changes (enforced by the stores).
// - EndedAt and DurationSeconds are set together, exactly once, when the
//   session reaches a terminal status.
// - A session is visible to exactly one owner; handlers must not allow
//   cross-user reads or mutation.
type CallSession struct {
	// ID is the process-local identifier, assigned at creation.
	ID string `json:"id" db:"id"`

	// ExternalCallID is the application-generated opaque handle given to
	// clients, unique across the store.
	ExternalCallID string `json:"callId" db:"call_id"`

	// ProviderCallID is the call-control id assigned by the provider
	// once it accepts the call. Empty until then.
	ProviderCallID string `json:"telnyxCallId,omitempty" db:"telnyx_call_id"`

	OwnerUserID string    `json:"userId" db:"user_id"`
	Direction   Direction `json:"direction" db:"direction"`

	FromNumber string `json:"fromNumber" db:"from_number"`
	ToNumber   string `json:"toNumber" db:"to_number"`

	Status Status `json:"status" db:"status"`

	StartedAt       time.Time  `json:"startTime" db:"start_time"`
	EndedAt         *time.Time `json:"endTime,omitempty" db:"end_time"`
	DurationSeconds *int       `json:"duration,omitempty" db:"duration"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBusy      Status = "busy"
	StatusNoAnswer  Status = "no-answer"
)

// Terminal reports whether no further status changes are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusRinging, StatusAnswered, StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// ValidateTransition is the strict, optional transition check. The
// stores accept arbitrary overwrites; services opt in via
// WithStrictTransitions. Self-transitions and writes out of a terminal
// status are rejected here.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return &TransitionError{From: from, To: to}
	}
	if from == to {
		return &TransitionError{From: from, To: to}
	}
	if from.Terminal() {
		return &TransitionError{From: from, To: to}
	}
	switch from {
	case StatusRinging:
		// Any forward move out of ringing is legal.
		return nil
	case StatusAnswered:
		if to == StatusCompleted || to == StatusFailed {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// TransitionError reports an illegal status change under strict checking.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return "calls: illegal status transition " + string(e.From) + " -> " + string(e.To)
}

// UpdateFields is a partial update applied as a shallow merge over an
// existing session. Nil fields are left untouched.
type UpdateFields struct {
	Status          *Status
	ProviderCallID  *string
	EndedAt         *time.Time
	DurationSeconds *int
}
