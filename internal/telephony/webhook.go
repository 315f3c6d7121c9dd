package telephony

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// CallEvent is the typed form of an inbound provider webhook: a tagged
// union over initiated/answered/hangup.
type CallEvent struct {
	Type           EventType
	ProviderCallID string

	From      string
	To        string
	Direction string // "incoming" or "outgoing"

	// HangupCause is set for EventHangup only.
	HangupCause string
}

type EventType string

const (
	EventInitiated EventType = "call.initiated"
	EventAnswered  EventType = "call.answered"
	EventHangup    EventType = "call.hangup"
)

// ErrUnhandledEvent marks well-formed webhooks this service does not
// act on: event types outside the supported union, or payloads with no
// call_control_id to route by. Callers should acknowledge and drop
// these; a non-2xx response would make the provider retry forever.
var ErrUnhandledEvent = errors.New("telephony: unhandled webhook event")

type webhookEnvelope struct {
	EventType string `json:"event_type"`
	Payload   struct {
		CallControlID string `json:"call_control_id"`
		CallLegID     string `json:"call_leg_id"`
		CallSessionID string `json:"call_session_id"`
		ConnectionID  string `json:"connection_id"`
		From          string `json:"from"`
		To            string `json:"to"`
		Direction     string `json:"direction"`
		State         string `json:"state"`
		HangupCause   string `json:"hangup_cause"`
		HangupSource  string `json:"hangup_source"`
	} `json:"payload"`
}

// ParseEvent decodes a raw webhook body into a CallEvent.
// Events outside the supported union return ErrUnhandledEvent.
func ParseEvent(raw []byte) (CallEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return CallEvent{}, fmt.Errorf("telephony: invalid webhook payload: %w", err)
	}
	if env.Payload.CallControlID == "" {
		return CallEvent{}, ErrUnhandledEvent
	}

	ev := CallEvent{
		ProviderCallID: env.Payload.CallControlID,
		From:           env.Payload.From,
		To:             env.Payload.To,
		Direction:      env.Payload.Direction,
	}

	switch EventType(env.EventType) {
	case EventInitiated:
		ev.Type = EventInitiated
	case EventAnswered:
		ev.Type = EventAnswered
	case EventHangup:
		ev.Type = EventHangup
		ev.HangupCause = env.Payload.HangupCause
	default:
		return CallEvent{}, ErrUnhandledEvent
	}
	return ev, nil
}

// WebhookVerifier authenticates inbound webhooks using the provider's
// Ed25519 public key. The signed message is "<timestamp>|<body>".
//
// The webhook endpoint is an untrusted boundary; verification must run
// before the payload is parsed or acted on.
type WebhookVerifier struct {
	publicKey ed25519.PublicKey
	tolerance time.Duration
	now       func() time.Time
}

var (
	ErrBadSignature   = errors.New("telephony: webhook signature mismatch")
	ErrStaleTimestamp = errors.New("telephony: webhook timestamp outside tolerance")
)

func NewWebhookVerifier(publicKeyB64 string) (*WebhookVerifier, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("telephony: invalid webhook public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("telephony: webhook public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &WebhookVerifier{
		publicKey: ed25519.PublicKey(raw),
		tolerance: 5 * time.Minute,
		now:       time.Now,
	}, nil
}

// WithClock overrides the timestamp check clock. Test hook.
func (v *WebhookVerifier) WithClock(now func() time.Time) *WebhookVerifier {
	v.now = now
	return v
}

// Verify checks the base64 signature and unix timestamp headers against
// the raw request body.
func (v *WebhookVerifier) Verify(signatureB64, timestamp string, body []byte) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrBadSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return ErrStaleTimestamp
	}

	signed := make([]byte, 0, len(timestamp)+1+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, '|')
	signed = append(signed, body...)
	if !ed25519.Verify(v.publicKey, signed, sig) {
		return ErrBadSignature
	}
	return nil
}
