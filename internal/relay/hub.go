package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Per-connection outbound queue. Overflow drops the connection, not
	// the whole hub (at-most-once, best-effort delivery).
	sendQueueSize = 64

	writeWait = 10 * time.Second
)

// Conn is one live transport connection. It starts untagged; an auth
// message tags it with the owning user id.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, sendQueueSize)}
}

// writePump drains the send queue onto the socket. One goroutine per
// connection; exits when the hub closes the queue.
func (c *Conn) writePump() {
	defer c.ws.Close()
	for payload := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

type authReq struct {
	conn   *Conn
	userID string
}

type envelope struct {
	userID  string
	all     bool
	payload []byte
}

// Hub is the event relay: it owns the set of live connections and fans
// typed notifications out to them.
//
// All registry mutation and every send pass through the single run
// loop, so messages for the same user reach each of that user's
// connections in SendToUser invocation order. The hub is an
// instance-scoped object; construct one per server (or per test) and
// inject it.
type Hub struct {
	log *slog.Logger

	register   chan *Conn
	unregister chan *Conn
	auth       chan authReq
	dispatch   chan envelope

	mu      sync.Mutex
	publish func(userID string, all bool, msg Message) error
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		auth:       make(chan authReq),
		dispatch:   make(chan envelope, 256),
	}
}

// setPublisher routes SendToUser/BroadcastAll through an external
// fan-out (the Redis broker) instead of direct local dispatch.
func (h *Hub) setPublisher(fn func(userID string, all bool, msg Message) error) {
	h.mu.Lock()
	h.publish = fn
	h.mu.Unlock()
}

func (h *Hub) publisher() func(userID string, all bool, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publish
}

// Run services the hub until ctx is cancelled. Must be running before
// any connection registers or any message is sent.
func (h *Hub) Run(ctx context.Context) {
	conns := make(map[*Conn]string) // conn -> userID, "" while untagged

	closeConn := func(c *Conn) {
		if _, ok := conns[c]; !ok {
			return
		}
		delete(conns, c)
		close(c.send)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range conns {
				closeConn(c)
			}
			return

		case c := <-h.register:
			conns[c] = ""

		case c := <-h.unregister:
			closeConn(c)

		case a := <-h.auth:
			if _, ok := conns[a.conn]; ok {
				conns[a.conn] = a.userID
			}

		case env := <-h.dispatch:
			for c, uid := range conns {
				if !env.all && (uid == "" || uid != env.userID) {
					continue
				}
				select {
				case c.send <- env.payload:
				default:
					// Slow consumer; drop the connection rather than
					// block the dispatch loop.
					h.log.Warn("relay connection dropped: send queue full")
					closeConn(c)
				}
			}
		}
	}
}

// Register adds an untagged connection.
func (h *Hub) Register(c *Conn) { h.register <- c }

// Authenticate tags a previously-registered connection with a user id.
func (h *Hub) Authenticate(c *Conn, userID string) {
	h.auth <- authReq{conn: c, userID: userID}
}

// Unregister removes a connection on transport close.
func (h *Hub) Unregister(c *Conn) { h.unregister <- c }

// SendToUser delivers a message to every currently-open, authenticated
// connection tagged with userID. Silently drops when none are
// connected; no queuing or replay.
func (h *Hub) SendToUser(userID, messageType string, data any) {
	msg := Message{Type: messageType, Data: data}
	if pub := h.publisher(); pub != nil {
		if err := pub(userID, false, msg); err == nil {
			return
		}
		h.log.Warn("relay publish failed, delivering locally", "type", messageType)
	}
	h.deliver(userID, false, msg)
}

// BroadcastAll delivers a message to every open connection regardless
// of tag.
func (h *Hub) BroadcastAll(messageType string, data any) {
	msg := Message{Type: messageType, Data: data}
	if pub := h.publisher(); pub != nil {
		if err := pub("", true, msg); err == nil {
			return
		}
		h.log.Warn("relay publish failed, delivering locally", "type", messageType)
	}
	h.deliver("", true, msg)
}

// deliver enqueues a message for local connections only. The broker
// calls this on every instance that receives the published frame.
func (h *Hub) deliver(userID string, all bool, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("relay message marshal failed", "type", msg.Type, "err", err)
		return
	}
	h.dispatch <- envelope{userID: userID, all: all, payload: payload}
}
