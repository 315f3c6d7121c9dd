package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"softphone/internal/calls"
	"softphone/internal/relay"
)

// Client is the softphone core a front end embeds: it drives the REST
// API, folds server-relayed events and local action confirmations into
// one reducer, and runs the per-second duration ticker while a call is
// active.
type Client struct {
	api       *APIClient
	reducer   *Reducer
	transport *Transport

	fromNumber string

	mu         sync.Mutex
	tickerStop chan struct{}
}

type Config struct {
	// APIBaseURL is the http(s) origin of the dialer server.
	APIBaseURL string
	// WSURL is the ws(s) relay endpoint, e.g. ws://host/ws.
	WSURL string

	UserID string
	Token  string

	// FromNumber is the caller id used for outbound calls.
	FromNumber string
}

func NewClient(cfg Config) *Client {
	api := NewAPIClient(cfg.APIBaseURL)
	api.token = cfg.Token

	c := &Client{
		api:        api,
		reducer:    NewReducer(),
		transport:  NewTransport(cfg.WSURL, cfg.UserID),
		fromNumber: cfg.FromNumber,
	}
	c.transport.OnMessage(c.handleServerMessage)
	c.transport.OnStatus(c.handleTransportStatus)
	return c
}

// OnChange registers a state snapshot callback. Set before Start.
func (c *Client) OnChange(fn func(State)) { c.reducer.OnChange(fn) }

// OnTransportStatus surfaces connection state to the front end.
func (c *Client) OnTransportStatus(fn func(ConnStatus)) {
	prev := c.transport.onStatus
	c.transport.OnStatus(func(s ConnStatus) {
		prev(s)
		fn(s)
	})
}

// Start connects the relay transport.
func (c *Client) Start(ctx context.Context) { c.transport.Connect(ctx) }

// Reconnect restarts a transport that reached the terminal failed
// state.
func (c *Client) Reconnect(ctx context.Context) { c.transport.Reconnect(ctx) }

// Close stops the transport and the ticker.
func (c *Client) Close() {
	c.transport.Close()
	c.stopTicker()
}

func (c *Client) State() State                { return c.reducer.State() }
func (c *Client) TransportStatus() ConnStatus { return c.transport.Status() }
func (c *Client) API() *APIClient             { return c.api }

// --- Dial pad ---

func (c *Client) PressDigit(d string) { c.reducer.Apply(DigitPressed{Digit: d}) }
func (c *Client) DeleteDigit()        { c.reducer.Apply(DigitDeleted{}) }
func (c *Client) ClearDialedNumber()  { c.reducer.Apply(BufferCleared{}) }

// --- Call actions ---

// ErrNoNumber is returned when Dial is invoked with an empty buffer and
// no explicit destination.
var ErrNoNumber = errors.New("dialer: no number to call")

// Dial places an outbound call to the dialed buffer (or an explicit
// number). Nothing changes locally until the round trip succeeds.
func (c *Client) Dial(ctx context.Context, toNumber string) (calls.CallSession, error) {
	if toNumber == "" {
		toNumber = c.reducer.State().DialedNumber
	}
	if toNumber == "" {
		return calls.CallSession{}, ErrNoNumber
	}

	sess, err := c.api.CreateCall(ctx, c.fromNumber, toNumber)
	if err != nil {
		return calls.CallSession{}, err
	}
	c.reducer.Apply(CallStarted{Call: sess})
	c.startTicker()
	return sess, nil
}

// Answer accepts the pending incoming call.
func (c *Client) Answer(ctx context.Context) (calls.CallSession, error) {
	st := c.reducer.State()
	if st.IncomingCall == nil {
		return calls.CallSession{}, ErrCallNotFound
	}
	sess, err := c.api.Answer(ctx, st.IncomingCall.CallID)
	if err != nil {
		return calls.CallSession{}, err
	}
	c.reducer.Apply(CallAnswered{Call: sess})
	c.startTicker()
	return sess, nil
}

// Decline hangs up the pending incoming call and clears the pending
// slot immediately, without waiting for confirmation.
func (c *Client) Decline(ctx context.Context) error {
	st := c.reducer.State()
	if st.IncomingCall == nil {
		return ErrCallNotFound
	}
	callID := st.IncomingCall.CallID
	c.reducer.Apply(IncomingDeclined{})
	_, err := c.api.Hangup(ctx, callID)
	return err
}

// Hangup terminates the active call.
func (c *Client) Hangup(ctx context.Context) error {
	st := c.reducer.State()
	if st.ActiveCall == nil {
		return ErrCallNotFound
	}
	if _, err := c.api.Hangup(ctx, st.ActiveCall.ExternalCallID); err != nil {
		return err
	}
	c.reducer.Apply(CallEnded{})
	c.stopTicker()
	return nil
}

// ToggleHold flips hold on the active call; the local flag changes only
// after the server confirms.
func (c *Client) ToggleHold(ctx context.Context) error {
	st := c.reducer.State()
	if st.ActiveCall == nil {
		return ErrCallNotFound
	}
	next := !st.IsOnHold
	if err := c.api.SetHold(ctx, st.ActiveCall.ExternalCallID, next); err != nil {
		return err
	}
	c.reducer.Apply(HoldChanged{OnHold: next})
	return nil
}

// ToggleMute flips mute on the active call.
func (c *Client) ToggleMute(ctx context.Context) error {
	st := c.reducer.State()
	if st.ActiveCall == nil {
		return ErrCallNotFound
	}
	next := !st.IsMuted
	if err := c.api.SetMute(ctx, st.ActiveCall.ExternalCallID, next); err != nil {
		return err
	}
	c.reducer.Apply(MuteChanged{Muted: next})
	return nil
}

// Transfer hands the active call to another number and clears the
// active slot on success.
func (c *Client) Transfer(ctx context.Context, toNumber string) error {
	st := c.reducer.State()
	if st.ActiveCall == nil {
		return ErrCallNotFound
	}
	if err := c.api.Transfer(ctx, st.ActiveCall.ExternalCallID, toNumber); err != nil {
		return err
	}
	c.reducer.Apply(CallEnded{})
	c.stopTicker()
	return nil
}

// --- Relay plumbing ---

func (c *Client) handleServerMessage(msg ServerMessage) {
	switch msg.Type {
	case relay.TypeCallAnswered:
		var sess calls.CallSession
		if json.Unmarshal(msg.Data, &sess) == nil {
			c.reducer.Apply(ServerCallAnswered{Call: sess})
			c.startTicker()
		}
	case relay.TypeCallEnded:
		var sess calls.CallSession
		if json.Unmarshal(msg.Data, &sess) == nil {
			c.reducer.Apply(ServerCallEnded{Call: sess})
			if c.reducer.State().ActiveCall == nil {
				c.stopTicker()
			}
		}
	case relay.TypeIncomingCall:
		var in relay.IncomingCallData
		if json.Unmarshal(msg.Data, &in) == nil {
			c.reducer.Apply(ServerIncomingCall{Call: in})
		}
	case relay.TypeCallHoldChanged:
		var d relay.HoldChangedData
		if json.Unmarshal(msg.Data, &d) == nil {
			c.reducer.Apply(ServerHoldChanged{OnHold: d.OnHold})
		}
	case relay.TypeCallMuteChanged:
		var d relay.MuteChangedData
		if json.Unmarshal(msg.Data, &d) == nil {
			c.reducer.Apply(ServerMuteChanged{Muted: d.Muted})
		}
	}
}

func (c *Client) handleTransportStatus(s ConnStatus) {
	// The local duration approximation is only meaningful while the
	// relay is live; any reconnection cycle cancels it.
	if s != StatusConnected {
		c.stopTicker()
	}
}

// --- Duration ticker ---

func (c *Client) startTicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickerStop = stop

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.reducer.Apply(DurationTick{})
			}
		}
	}()
}

func (c *Client) stopTicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}
