package dialer

import (
	"sync"

	"softphone/internal/calls"
	"softphone/internal/relay"
)

// State is the softphone UI state: a dialed-digit buffer, at most one
// active call, mute/hold flags, a locally ticked duration counter, and
// at most one pending incoming call.
type State struct {
	DialedNumber string

	ActiveCall *calls.CallSession
	IsInCall   bool
	IsMuted    bool
	IsOnHold   bool

	// CallDuration is a local approximation in seconds, not
	// server-authoritative.
	CallDuration int

	IncomingCall *relay.IncomingCallData
}

// Event is one entry in the strictly ordered log the reducer folds
// over: either a local intent (user action confirmed by the server
// round trip, or an optimistic action like declining) or a
// server-relayed notification. Modeling both through one log makes the
// last-writer-wins semantics of optimistic updates explicit.
type Event interface {
	apply(*State)
}

// --- Local intents ---

type DigitPressed struct{ Digit string }

func (e DigitPressed) apply(s *State) { s.DialedNumber += e.Digit }

type DigitDeleted struct{}

func (e DigitDeleted) apply(s *State) {
	if n := len(s.DialedNumber); n > 0 {
		s.DialedNumber = s.DialedNumber[:n-1]
	}
}

type BufferCleared struct{}

func (e BufferCleared) apply(s *State) { s.DialedNumber = "" }

// CallStarted records a successful initiate round trip.
type CallStarted struct{ Call calls.CallSession }

func (e CallStarted) apply(s *State) {
	c := e.Call
	s.ActiveCall = &c
	s.IsInCall = true
	s.CallDuration = 0
}

// CallAnswered records a successful answer round trip: the pending
// incoming call becomes the active call.
type CallAnswered struct{ Call calls.CallSession }

func (e CallAnswered) apply(s *State) {
	c := e.Call
	s.ActiveCall = &c
	s.IsInCall = true
	s.IncomingCall = nil
	s.CallDuration = 0
}

// CallEnded records a hangup or transfer confirmation; all call-scoped
// flags reset.
type CallEnded struct{}

func (e CallEnded) apply(s *State) {
	s.ActiveCall = nil
	s.IsInCall = false
	s.IsMuted = false
	s.IsOnHold = false
	s.CallDuration = 0
}

// IncomingDeclined clears the pending slot optimistically, before the
// server confirms the hangup.
type IncomingDeclined struct{}

func (e IncomingDeclined) apply(s *State) { s.IncomingCall = nil }

type HoldChanged struct{ OnHold bool }

func (e HoldChanged) apply(s *State) { s.IsOnHold = e.OnHold }

type MuteChanged struct{ Muted bool }

func (e MuteChanged) apply(s *State) { s.IsMuted = e.Muted }

// DurationTick advances the local counter while a call is active.
type DurationTick struct{}

func (e DurationTick) apply(s *State) {
	if s.IsInCall {
		s.CallDuration++
	}
}

// --- Server-relayed events ---

// ServerCallAnswered promotes the call to active. Like ServerCallEnded
// it is scoped by call id: an answer for a call other than the current
// active one would clobber the in-progress call, so it only applies
// when it matches the active call or the pending incoming call (or
// when neither slot is occupied).
type ServerCallAnswered struct{ Call calls.CallSession }

func (e ServerCallAnswered) apply(s *State) {
	if s.ActiveCall != nil && s.ActiveCall.ExternalCallID != e.Call.ExternalCallID {
		return
	}
	if s.ActiveCall == nil && s.IncomingCall != nil && s.IncomingCall.CallID != e.Call.ExternalCallID {
		return
	}
	c := e.Call
	s.ActiveCall = &c
	s.IsInCall = true
	s.IncomingCall = nil
}

type ServerCallEnded struct{ Call calls.CallSession }

func (e ServerCallEnded) apply(s *State) {
	if s.ActiveCall != nil && s.ActiveCall.ExternalCallID != e.Call.ExternalCallID {
		return
	}
	CallEnded{}.apply(s)
}

type ServerIncomingCall struct{ Call relay.IncomingCallData }

func (e ServerIncomingCall) apply(s *State) {
	c := e.Call
	s.IncomingCall = &c
}

// Server-confirmed hold/mute flow through the same log as the local
// optimistic entries, so whichever was applied last wins.
type ServerHoldChanged struct{ OnHold bool }

func (e ServerHoldChanged) apply(s *State) { s.IsOnHold = e.OnHold }

type ServerMuteChanged struct{ Muted bool }

func (e ServerMuteChanged) apply(s *State) { s.IsMuted = e.Muted }

// Reducer folds events into State in arrival order.
type Reducer struct {
	mu    sync.Mutex
	state State
	seq   uint64

	onChange func(State)
}

func NewReducer() *Reducer { return &Reducer{} }

// OnChange registers a callback invoked with a state snapshot after
// every applied event. Must be set before events flow.
func (r *Reducer) OnChange(fn func(State)) { r.onChange = fn }

// Apply folds one event and returns the resulting snapshot.
func (r *Reducer) Apply(ev Event) State {
	r.mu.Lock()
	r.seq++
	ev.apply(&r.state)
	snap := r.snapshotLocked()
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return snap
}

// State returns a snapshot of the current state.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Seq returns how many events have been applied.
func (r *Reducer) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Reducer) snapshotLocked() State {
	snap := r.state
	if r.state.ActiveCall != nil {
		c := *r.state.ActiveCall
		snap.ActiveCall = &c
	}
	if r.state.IncomingCall != nil {
		c := *r.state.IncomingCall
		snap.IncomingCall = &c
	}
	return snap
}
