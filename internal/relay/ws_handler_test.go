package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startWSServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := gin.New()
	h := &WSHandler{Hub: hub, Upgrader: NewUpgrader()}
	r.GET("/ws", h.Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWSMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestWebSocketAuthAndNotify(t *testing.T) {
	hub, url := startWSServer(t)
	ws := dialWS(t, url)

	auth := Message{Type: TypeAuth, Data: AuthData{UserID: "alice"}}
	if err := ws.WriteJSON(auth); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	// Round-trip a ping so the auth message is known to be processed
	// before the hub sends.
	if err := ws.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readWSMessage(t, ws); msg.Type != TypePong {
		t.Fatalf("got %s, want pong", msg.Type)
	}

	hub.SendToUser("alice", TypeIncomingCall, IncomingCallData{
		CallID:     "call_1",
		FromNumber: "+15550009999",
		ToNumber:   "+15550001111",
	})

	msg := readWSMessage(t, ws)
	if msg.Type != TypeIncomingCall {
		t.Fatalf("got %s, want incoming_call", msg.Type)
	}
	data, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	var payload IncomingCallData
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.CallID != "call_1" || payload.FromNumber != "+15550009999" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebSocketUnauthenticatedGetsNoUserMessages(t *testing.T) {
	hub, url := startWSServer(t)
	ws := dialWS(t, url)

	// Ping proves the socket is registered and live.
	if err := ws.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readWSMessage(t, ws); msg.Type != TypePong {
		t.Fatalf("got %s, want pong", msg.Type)
	}

	hub.SendToUser("alice", TypeCallEnded, nil)

	_ = ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := ws.ReadMessage(); err == nil {
		t.Fatalf("unexpected message before auth: %s", raw)
	}
}

func TestWebSocketMalformedMessagesIgnored(t *testing.T) {
	_, url := startWSServer(t)
	ws := dialWS(t, url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(Message{Type: TypeAuth, Data: AuthData{}}); err != nil {
		t.Fatal(err)
	}

	// The connection survives both; ping still answers.
	if err := ws.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readWSMessage(t, ws); msg.Type != TypePong {
		t.Fatalf("got %s, want pong", msg.Type)
	}
}
