package relay

import (
	"encoding/json"
	"net/http"

	"softphone/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades /ws requests and bridges each socket to the hub.
//
// The client speaks a small protocol: an auth message tags the
// connection with its user id, and ping gets a pong on the same socket.
type WSHandler struct {
	Hub *Hub

	Upgrader websocket.Upgrader
}

type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (h *WSHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	ws, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := newConn(ws)
	h.Hub.Register(conn)
	go conn.writePump()

	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed", "err", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("websocket message parse failed", "err", err)
			continue
		}

		switch msg.Type {
		case TypeAuth:
			var auth AuthData
			if err := json.Unmarshal(msg.Data, &auth); err != nil || auth.UserID == "" {
				log.Warn("websocket auth message invalid")
				continue
			}
			h.Hub.Authenticate(conn, auth.UserID)

		case TypePing:
			pong, _ := json.Marshal(Message{Type: TypePong})
			select {
			case conn.send <- pong:
			default:
			}
		}
	}
}

// NewUpgrader returns the upgrader used by the API server.
// CheckOrigin accepts all origins; the socket carries no privileged
// state until the client authenticates.
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}
