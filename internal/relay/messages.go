package relay

// Message is the envelope for every WebSocket frame, both directions.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Server-to-client message types.
const (
	TypeCallInitiated   = "call_initiated"
	TypeCallAnswered    = "call_answered"
	TypeCallEnded       = "call_ended"
	TypeCallHoldChanged = "call_hold_changed"
	TypeCallMuteChanged = "call_mute_changed"
	TypeCallTransferred = "call_transferred"
	TypeIncomingCall    = "incoming_call"
	TypePong            = "pong"
)

// Client-to-server message types.
const (
	TypeAuth = "auth"
	TypePing = "ping"
)

// AuthData is the payload of a client auth message.
type AuthData struct {
	UserID string `json:"userId"`
}

// HoldChangedData is the minimal sub-record for hold notifications.
type HoldChangedData struct {
	CallID string `json:"callId"`
	OnHold bool   `json:"onHold"`
}

// MuteChangedData is the minimal sub-record for mute notifications.
type MuteChangedData struct {
	CallID string `json:"callId"`
	Muted  bool   `json:"muted"`
}

// TransferredData announces a completed transfer action.
type TransferredData struct {
	CallID   string `json:"callId"`
	ToNumber string `json:"toNumber"`
}

// IncomingCallData describes a ringing inbound call.
type IncomingCallData struct {
	CallID     string `json:"callId"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`
}
