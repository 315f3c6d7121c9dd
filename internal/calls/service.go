package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"softphone/internal/relay"
	"softphone/internal/telephony"
	"softphone/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier pushes typed notifications to a user's live connections.
// *relay.Hub satisfies it; tests use a recorder.
type Notifier interface {
	SendToUser(userID, messageType string, data any)
}

// CallLimiter bounds the number of simultaneously active calls per
// user. Acquire reports false when the user is at the cap.
type CallLimiter interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// Service orchestrates the call lifecycle: store mutation, provider
// calls, and relay notifications, in that order. Provider failures
// surface immediately; there is no retry.
type Service struct {
	store    Store
	provider telephony.CallProvider
	notifier Notifier
	log      *slog.Logger

	limiter CallLimiter

	strict bool
	now    func() time.Time
}

func NewService(store Store, provider telephony.CallProvider, notifier Notifier) *Service {
	return &Service{
		store:    store,
		provider: provider,
		notifier: notifier,
		log:      slog.Default(),
		now:      time.Now,
	}
}

// WithCallCap enables the Redis-backed per-user concurrent call cap.
func (s *Service) WithCallCap(rdb *redis.Client, maxPerUser int) *Service {
	return s.WithCallLimiter(&redisCallLimiter{rdb: rdb, maxPerUser: maxPerUser})
}

// WithCallLimiter installs a custom concurrency limiter.
func (s *Service) WithCallLimiter(l CallLimiter) *Service {
	s.limiter = l
	return s
}

// WithStrictTransitions rejects status changes that fail
// ValidateTransition instead of overwriting.
func (s *Service) WithStrictTransitions() *Service {
	s.strict = true
	return s
}

// WithClock overrides the termination timestamp source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(log *slog.Logger) *Service {
	s.log = log
	return s
}

// Slot TTL guards against leaked cap slots if the process dies before
// a call terminates.
const callSlotTTL = 4 * time.Hour

// redisCallLimiter counts active calls per user in Redis, so the cap
// holds across API instances.
type redisCallLimiter struct {
	rdb        *redis.Client
	maxPerUser int
}

func (l *redisCallLimiter) key(userID string) string {
	return "softphone:callcap:" + userID
}

func (l *redisCallLimiter) Acquire(ctx context.Context, userID string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, l.key(userID), l.maxPerUser, callSlotTTL)
}

func (l *redisCallLimiter) Release(ctx context.Context, userID string) error {
	return utils.ReleaseSlot(ctx, l.rdb, l.key(userID))
}

type InitiateRequest struct {
	OwnerUserID string

	// ExternalCallID is the client-generated public handle. Generated
	// server-side when empty.
	ExternalCallID string

	Direction  Direction
	FromNumber string
	ToNumber   string
}

// Initiate creates the session record, places the call with the
// provider, stamps the provider call id, and notifies the owner.
//
// On provider failure the created record is left in place (ringing)
// and the error surfaces to the caller, matching the reference
// behavior of the system this replaces.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (CallSession, error) {
	if req.OwnerUserID == "" || req.FromNumber == "" || req.ToNumber == "" {
		return CallSession{}, ErrInvalidArgument
	}
	if req.Direction == "" {
		req.Direction = DirectionOutbound
	}
	if !req.Direction.Valid() {
		return CallSession{}, ErrInvalidArgument
	}
	if req.ExternalCallID == "" {
		req.ExternalCallID = "call_" + uuid.NewString()
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, req.OwnerUserID)
		if err != nil {
			return CallSession{}, fmt.Errorf("call cap check failed: %w", err)
		}
		if !ok {
			return CallSession{}, ErrCallCapExceeded
		}
	}

	sess, err := s.store.Create(ctx, CallSession{
		ExternalCallID: req.ExternalCallID,
		OwnerUserID:    req.OwnerUserID,
		Direction:      req.Direction,
		FromNumber:     req.FromNumber,
		ToNumber:       req.ToNumber,
		Status:         StatusRinging,
	})
	if err != nil {
		s.releaseSlot(ctx, req.OwnerUserID)
		return CallSession{}, err
	}

	providerID, err := s.provider.Initiate(ctx, req.FromNumber, req.ToNumber)
	if err != nil {
		s.releaseSlot(ctx, req.OwnerUserID)
		return CallSession{}, err
	}

	ringing := StatusRinging
	updated, err := s.store.Update(ctx, sess.ID, UpdateFields{
		Status:         &ringing,
		ProviderCallID: &providerID,
	})
	if err != nil {
		return CallSession{}, err
	}

	s.notifier.SendToUser(updated.OwnerUserID, relay.TypeCallInitiated, updated)
	return updated, nil
}

// Answer confirms an inbound call with the provider. A second answer
// for an already-answered call is a no-op returning the current
// session; it never touches StartedAt or ProviderCallID.
func (s *Service) Answer(ctx context.Context, userID, externalCallID string) (CallSession, error) {
	sess, err := s.lookupOwned(ctx, userID, externalCallID)
	if err != nil {
		return CallSession{}, err
	}
	if sess.Status == StatusAnswered {
		return sess, nil
	}
	if err := s.checkTransition(sess.Status, StatusAnswered); err != nil {
		return CallSession{}, err
	}

	if err := s.provider.Answer(ctx, sess.ProviderCallID); err != nil {
		return CallSession{}, err
	}

	answered := StatusAnswered
	updated, err := s.store.Update(ctx, sess.ID, UpdateFields{Status: &answered})
	if err != nil {
		return CallSession{}, err
	}

	s.notifier.SendToUser(updated.OwnerUserID, relay.TypeCallAnswered, updated)
	return updated, nil
}

// Hangup terminates the call with the provider and stamps the terminal
// state. Hanging up an already-terminal session is a no-op.
func (s *Service) Hangup(ctx context.Context, userID, externalCallID string) (CallSession, error) {
	sess, err := s.lookupOwned(ctx, userID, externalCallID)
	if err != nil {
		return CallSession{}, err
	}
	if sess.Status.Terminal() {
		return sess, nil
	}

	if err := s.provider.Hangup(ctx, sess.ProviderCallID); err != nil {
		return CallSession{}, err
	}
	return s.terminate(ctx, sess, StatusCompleted)
}

// SetHold toggles hold at the provider and notifies the owner. Hold
// state is not persisted on the session record.
func (s *Service) SetHold(ctx context.Context, userID, externalCallID string, hold bool) error {
	sess, err := s.lookupOwned(ctx, userID, externalCallID)
	if err != nil {
		return err
	}
	if err := s.provider.SetHold(ctx, sess.ProviderCallID, hold); err != nil {
		return err
	}
	s.notifier.SendToUser(sess.OwnerUserID, relay.TypeCallHoldChanged, relay.HoldChangedData{
		CallID: sess.ExternalCallID,
		OnHold: hold,
	})
	return nil
}

// SetMute toggles mute at the provider and notifies the owner.
func (s *Service) SetMute(ctx context.Context, userID, externalCallID string, mute bool) error {
	sess, err := s.lookupOwned(ctx, userID, externalCallID)
	if err != nil {
		return err
	}
	if err := s.provider.SetMute(ctx, sess.ProviderCallID, mute); err != nil {
		return err
	}
	s.notifier.SendToUser(sess.OwnerUserID, relay.TypeCallMuteChanged, relay.MuteChangedData{
		CallID: sess.ExternalCallID,
		Muted:  mute,
	})
	return nil
}

// Transfer hands the call off to another number.
func (s *Service) Transfer(ctx context.Context, userID, externalCallID, toNumber string) error {
	if toNumber == "" {
		return ErrInvalidArgument
	}
	sess, err := s.lookupOwned(ctx, userID, externalCallID)
	if err != nil {
		return err
	}
	if err := s.provider.Transfer(ctx, sess.ProviderCallID, toNumber); err != nil {
		return err
	}
	s.notifier.SendToUser(sess.OwnerUserID, relay.TypeCallTransferred, relay.TransferredData{
		CallID:   sess.ExternalCallID,
		ToNumber: toNumber,
	})
	return nil
}

// History returns the owner's sessions, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]CallSession, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListByOwner(ctx, userID)
}

// HandleProviderEvent applies an inbound webhook event to the session
// it belongs to. Events for unknown provider call ids are dropped, as
// are duplicates of already-applied lifecycle changes, which keeps the
// call_ended notification at exactly once per session.
func (s *Service) HandleProviderEvent(ctx context.Context, ev telephony.CallEvent) error {
	sess, err := s.store.GetByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("webhook event for unknown call", "provider_call_id", ev.ProviderCallID, "type", string(ev.Type))
			return nil
		}
		return err
	}

	switch ev.Type {
	case telephony.EventAnswered:
		if sess.Status == StatusAnswered || sess.Status.Terminal() {
			return nil
		}
		if err := s.checkTransition(sess.Status, StatusAnswered); err != nil {
			return err
		}
		answered := StatusAnswered
		updated, err := s.store.Update(ctx, sess.ID, UpdateFields{Status: &answered})
		if err != nil {
			return err
		}
		s.notifier.SendToUser(updated.OwnerUserID, relay.TypeCallAnswered, updated)

	case telephony.EventHangup:
		if sess.Status.Terminal() {
			return nil
		}
		_, err := s.terminate(ctx, sess, statusForHangupCause(ev.HangupCause))
		return err

	case telephony.EventInitiated:
		if ev.Direction == "incoming" {
			from := ev.From
			if from == "" {
				from = sess.FromNumber
			}
			to := ev.To
			if to == "" {
				to = sess.ToNumber
			}
			s.notifier.SendToUser(sess.OwnerUserID, relay.TypeIncomingCall, relay.IncomingCallData{
				CallID:     sess.ExternalCallID,
				FromNumber: from,
				ToNumber:   to,
			})
		}
	}
	return nil
}

// statusForHangupCause maps a provider hangup cause to the terminal
// session status.
func statusForHangupCause(cause string) Status {
	switch cause {
	case "user_busy", "busy":
		return StatusBusy
	case "no_answer", "timeout", "originator_cancel":
		return StatusNoAnswer
	case "call_rejected", "unspecified_error", "failed":
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// lookupOwned resolves a call by its public handle, scoped to the
// caller. Missing sessions, cross-user handles, and sessions the
// provider never accepted all read as not-found so nothing leaks.
func (s *Service) lookupOwned(ctx context.Context, userID, externalCallID string) (CallSession, error) {
	if externalCallID == "" {
		return CallSession{}, ErrNotFound
	}
	sess, err := s.store.GetByExternalID(ctx, externalCallID)
	if err != nil {
		return CallSession{}, err
	}
	if userID != "" && sess.OwnerUserID != userID {
		return CallSession{}, ErrNotFound
	}
	if sess.ProviderCallID == "" {
		return CallSession{}, ErrNotFound
	}
	return sess, nil
}

// terminate stamps the terminal status, EndedAt, and DurationSeconds
// together, releases the owner's cap slot, and notifies once.
func (s *Service) terminate(ctx context.Context, sess CallSession, st Status) (CallSession, error) {
	if err := s.checkTransition(sess.Status, st); err != nil {
		return CallSession{}, err
	}

	endedAt := s.now()
	duration := int(endedAt.Sub(sess.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	updated, err := s.store.Update(ctx, sess.ID, UpdateFields{
		Status:          &st,
		EndedAt:         &endedAt,
		DurationSeconds: &duration,
	})
	if err != nil {
		return CallSession{}, err
	}

	s.releaseSlot(ctx, sess.OwnerUserID)
	s.notifier.SendToUser(updated.OwnerUserID, relay.TypeCallEnded, updated)
	return updated, nil
}

func (s *Service) checkTransition(from, to Status) error {
	if !s.strict {
		return nil
	}
	return ValidateTransition(from, to)
}

func (s *Service) releaseSlot(ctx context.Context, userID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, userID); err != nil {
		s.log.Warn("call cap release failed", "user_id", userID, "err", err)
	}
}
