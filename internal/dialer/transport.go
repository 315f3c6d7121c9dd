package dialer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"softphone/internal/relay"

	"github.com/gorilla/websocket"
)

// ConnStatus is the transport connection state. Transitions are driven
// by dial results, read errors, and backoff timers:
//
//	connecting -> connected            (dial ok)
//	connecting -> disconnected         (dial failed, retries left)
//	connected  -> disconnected         (read error)
//	disconnected -> connecting         (after backoff delay)
//	disconnected -> failed             (attempts exhausted)
//
// failed is terminal until Reconnect is invoked explicitly.
type ConnStatus string

const (
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusDisconnected ConnStatus = "disconnected"
	StatusFailed       ConnStatus = "failed"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxAttempts = 5
)

// ServerMessage is one relayed frame with its payload still raw; the
// client decodes Data per message type.
type ServerMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Transport maintains a WebSocket connection to the relay, with
// exponential-backoff reconnection (base 1s, doubling, capped
// attempts). On every successful open it sends the auth handshake for
// its user.
type Transport struct {
	url    string
	userID string

	dialer      *websocket.Dialer
	baseDelay   time.Duration
	maxAttempts int

	onMessage func(ServerMessage)
	onStatus  func(ConnStatus)

	mu       sync.Mutex
	status   ConnStatus
	attempts int
	ws       *websocket.Conn
	cancel   context.CancelFunc
	running  bool
}

func NewTransport(url, userID string) *Transport {
	return &Transport{
		url:         url,
		userID:      userID,
		dialer:      websocket.DefaultDialer,
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
		status:      StatusDisconnected,
	}
}

// WithBackoff overrides retry tuning. Test hook.
func (t *Transport) WithBackoff(base time.Duration, maxAttempts int) *Transport {
	t.baseDelay = base
	t.maxAttempts = maxAttempts
	return t
}

func (t *Transport) OnMessage(fn func(ServerMessage)) { t.onMessage = fn }
func (t *Transport) OnStatus(fn func(ConnStatus))     { t.onStatus = fn }

func (t *Transport) Status() ConnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Connect starts the connection loop. It returns immediately; status
// callbacks report progress.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(runCtx)
}

// Reconnect resets the attempt counter and restarts the loop after a
// terminal failed state.
func (t *Transport) Reconnect(ctx context.Context) {
	t.mu.Lock()
	t.attempts = 0
	running := t.running
	t.mu.Unlock()
	if running {
		return
	}
	t.Connect(ctx)
}

// Close tears the connection down and stops reconnection.
func (t *Transport) Close() {
	t.mu.Lock()
	cancel := t.cancel
	ws := t.ws
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close()
	}
}

// Ping sends the application-level keepalive.
func (t *Transport) Ping() error {
	return t.send(relay.Message{Type: relay.TypePing})
}

func (t *Transport) send(msg relay.Message) error {
	t.mu.Lock()
	ws := t.ws
	t.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func (t *Transport) run(ctx context.Context) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.ws = nil
		t.mu.Unlock()
	}()

	for {
		t.setStatus(StatusConnecting)

		ws, resp, err := t.dialer.DialContext(ctx, t.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				t.setStatus(StatusDisconnected)
				return
			}
			if !t.backoff(ctx) {
				return
			}
			continue
		}

		t.mu.Lock()
		t.ws = ws
		t.attempts = 0
		t.mu.Unlock()
		t.setStatus(StatusConnected)

		_ = t.send(relay.Message{Type: relay.TypeAuth, Data: relay.AuthData{UserID: t.userID}})

		t.readLoop(ws)

		t.mu.Lock()
		t.ws = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			t.setStatus(StatusDisconnected)
			return
		}
		if !t.backoff(ctx) {
			return
		}
	}
}

func (t *Transport) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if t.onMessage != nil {
			t.onMessage(msg)
		}
	}
}

// backoff waits the exponential delay before the next attempt. It
// reports false once attempts are exhausted, moving the transport to
// the terminal failed state.
func (t *Transport) backoff(ctx context.Context) bool {
	t.mu.Lock()
	attempts := t.attempts
	if attempts >= t.maxAttempts {
		t.mu.Unlock()
		t.setStatus(StatusFailed)
		return false
	}
	delay := t.baseDelay << attempts
	t.attempts++
	t.mu.Unlock()

	t.setStatus(StatusDisconnected)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (t *Transport) setStatus(s ConnStatus) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	cb := t.onStatus
	t.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
