package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"softphone/internal/auth"
	"softphone/internal/calls"
	"softphone/internal/config"
	"softphone/internal/contacts"
	"softphone/internal/users"

	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	nextID string
	err    error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Initiate(ctx context.Context, from, to string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if p.nextID == "" {
		return "tx-stub", nil
	}
	return p.nextID, nil
}

func (p *stubProvider) Answer(ctx context.Context, id string) error          { return p.err }
func (p *stubProvider) Hangup(ctx context.Context, id string) error          { return p.err }
func (p *stubProvider) SetHold(ctx context.Context, id string, h bool) error { return p.err }
func (p *stubProvider) SetMute(ctx context.Context, id string, m bool) error { return p.err }
func (p *stubProvider) Transfer(ctx context.Context, id, to string) error    { return p.err }
func (p *stubProvider) Bridge(ctx context.Context, id, other string) error   { return p.err }

type noopNotifier struct{}

func (noopNotifier) SendToUser(userID, messageType string, data any) {}

type testAPI struct {
	router  *gin.Engine
	users   *users.MemoryRepo
	calls   *calls.MemoryStore
	service *calls.Service
	manager *auth.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret-test-secret-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	userRepo := users.NewMemoryRepo()
	callStore := calls.NewMemoryStore()
	service := calls.NewService(callStore, &stubProvider{}, noopNotifier{})
	h := Handlers{
		Auth:     manager,
		Users:    userRepo,
		Calls:    service,
		Contacts: contacts.NewMemoryRepo(),
	}

	r := gin.New()
	r.POST("/api/login", h.Login)
	api := r.Group("/api", auth.RequireAccessToken(manager))
	{
		api.GET("/calls/:userId", auth.RequireSelf("userId"), h.ListCalls)
		api.POST("/calls", h.CreateCall)
		api.POST("/calls/:callId/answer", h.AnswerCall)
		api.POST("/calls/:callId/hangup", h.HangupCall)
		api.POST("/calls/:callId/hold", h.HoldCall)
		api.POST("/calls/:callId/mute", h.MuteCall)
		api.POST("/calls/:callId/transfer", h.TransferCall)
		api.GET("/contacts/:userId", auth.RequireSelf("userId"), h.ListContacts)
		api.POST("/contacts", h.CreateContact)
	}

	return &testAPI{router: r, users: userRepo, calls: callStore, service: service, manager: manager}
}

func (a *testAPI) addUser(t *testing.T, username, password string) users.User {
	t.Helper()
	u, err := a.users.Create(context.Background(), users.User{Username: username, Password: password})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (a *testAPI) tokenFor(t *testing.T, u users.User) string {
	t.Helper()
	pair, err := a.manager.IssuePair(time.Now(), u.ID, u.Username)
	if err != nil {
		t.Fatal(err)
	}
	return pair.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	u := api.addUser(t, "alice", "hunter2")

	t.Run("valid credentials", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/login", "", `{"username":"alice","password":"hunter2"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp["userId"] != u.ID {
			t.Errorf("userId = %q, want %q", resp["userId"], u.ID)
		}
		if resp["access_token"] == "" || resp["refresh_token"] == "" {
			t.Error("missing token pair")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/login", "", `{"username":"alice","password":"wrong"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/login", "", `{"username":"nobody","password":"x"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/login", "", `{"username":"alice"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestCallEndpointsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/calls", "", `{"fromNumber":"+1","toNumber":"+2"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCreateAndControlCall(t *testing.T) {
	api := newTestAPI(t)
	u := api.addUser(t, "alice", "pw")
	token := api.tokenFor(t, u)

	w := api.do(t, http.MethodPost, "/api/calls", token,
		`{"fromNumber":"+15550001111","toNumber":"+15550002222"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	var sess calls.CallSession
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.ExternalCallID == "" || sess.Status != calls.StatusRinging {
		t.Fatalf("session = %+v", sess)
	}
	if sess.ProviderCallID != "tx-stub" {
		t.Errorf("telnyxCallId = %q", sess.ProviderCallID)
	}

	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/hold", token, `{"hold":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("hold status = %d, body %s", w.Code, w.Body)
	}
	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/mute", token, `{"mute":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("mute status = %d, body %s", w.Code, w.Body)
	}

	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/transfer", token, `{"toNumber":"+15550003333"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("transfer status = %d, body %s", w.Code, w.Body)
	}
	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/transfer", token, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("transfer without toNumber status = %d, want 400", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/hangup", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("hangup status = %d, body %s", w.Code, w.Body)
	}
	var ended calls.CallSession
	if err := json.Unmarshal(w.Body.Bytes(), &ended); err != nil {
		t.Fatal(err)
	}
	if ended.Status != calls.StatusCompleted || ended.EndedAt == nil {
		t.Fatalf("ended = %+v", ended)
	}
}

// deniedLimiter reports every user as already at the concurrent-call cap.
type deniedLimiter struct{}

func (deniedLimiter) Acquire(ctx context.Context, userID string) (bool, error) { return false, nil }
func (deniedLimiter) Release(ctx context.Context, userID string) error         { return nil }

func TestCreateCallAtCapIs429(t *testing.T) {
	api := newTestAPI(t)
	api.service.WithCallLimiter(deniedLimiter{})
	token := api.tokenFor(t, api.addUser(t, "alice", "pw"))

	w := api.do(t, http.MethodPost, "/api/calls", token,
		`{"fromNumber":"+15550001111","toNumber":"+15550002222"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429, body %s", w.Code, w.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["error"] != "too many concurrent calls" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestUnknownCallIs404(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor(t, api.addUser(t, "alice", "pw"))

	w := api.do(t, http.MethodPost, "/api/calls/call_nope/hangup", token, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["error"] != "Call not found" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestCrossUserCallReads404(t *testing.T) {
	api := newTestAPI(t)
	alice := api.addUser(t, "alice", "pw")
	mallory := api.addUser(t, "mallory", "pw")

	w := api.do(t, http.MethodPost, "/api/calls", api.tokenFor(t, alice),
		`{"fromNumber":"+15550001111","toNumber":"+15550002222"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d", w.Code)
	}
	var sess calls.CallSession
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}

	w = api.do(t, http.MethodPost, "/api/calls/"+sess.ExternalCallID+"/hangup", api.tokenFor(t, mallory), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for another user's call", w.Code)
	}
}

func TestListCallsOwnership(t *testing.T) {
	api := newTestAPI(t)
	alice := api.addUser(t, "alice", "pw")
	bob := api.addUser(t, "bob", "pw")
	token := api.tokenFor(t, alice)

	w := api.do(t, http.MethodGet, "/api/calls/"+alice.ID, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("own history status = %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/calls/"+bob.ID, token, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("other user's history status = %d, want 403", w.Code)
	}
}

func TestContactsFlow(t *testing.T) {
	api := newTestAPI(t)
	u := api.addUser(t, "alice", "pw")
	token := api.tokenFor(t, u)

	w := api.do(t, http.MethodPost, "/api/contacts", token,
		`{"name":"Bob","phoneNumber":"+15550002222","company":"Acme"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}

	w = api.do(t, http.MethodPost, "/api/contacts", token, `{"name":"NoPhone"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid contact status = %d, want 400", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/contacts/"+u.ID, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []contacts.Contact
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Bob" {
		t.Errorf("list = %+v", list)
	}
}
