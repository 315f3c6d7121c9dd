package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"softphone/internal/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*TelnyxProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewTelnyxProvider(config.TelnyxConfig{
		APIKey:       "KEY123",
		ConnectionID: "conn-1",
		APIBaseURL:   srv.URL,
	}, "https://app.example.com/api/webhooks/telnyx")
	return p.WithHTTPClient(srv.Client()), srv
}

func TestInitiateSendsCallRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"call_control_id":"tx-abc","direction":"outgoing"}}`))
	})

	id, err := p.Initiate(context.Background(), "+15550001111", "+15550002222")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if id != "tx-abc" {
		t.Errorf("call control id = %q, want tx-abc", id)
	}
	if gotPath != "POST /calls" {
		t.Errorf("request = %q, want POST /calls", gotPath)
	}
	if gotAuth != "Bearer KEY123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["connection_id"] != "conn-1" || gotBody["webhook_url"] == "" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestActionsHitActionEndpoints(t *testing.T) {
	var paths []string
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	ctx := context.Background()
	steps := []struct {
		name string
		call func() error
		want string
	}{
		{"answer", func() error { return p.Answer(ctx, "tx-1") }, "/calls/tx-1/actions/answer"},
		{"hangup", func() error { return p.Hangup(ctx, "tx-1") }, "/calls/tx-1/actions/hangup"},
		{"hold on", func() error { return p.SetHold(ctx, "tx-1", true) }, "/calls/tx-1/actions/hold"},
		{"hold off", func() error { return p.SetHold(ctx, "tx-1", false) }, "/calls/tx-1/actions/unhold"},
		{"mute on", func() error { return p.SetMute(ctx, "tx-1", true) }, "/calls/tx-1/actions/mute"},
		{"mute off", func() error { return p.SetMute(ctx, "tx-1", false) }, "/calls/tx-1/actions/unmute"},
		{"transfer", func() error { return p.Transfer(ctx, "tx-1", "+15550003333") }, "/calls/tx-1/actions/transfer"},
		{"bridge", func() error { return p.Bridge(ctx, "tx-1", "tx-2") }, "/calls/tx-1/actions/bridge"},
	}
	for i, s := range steps {
		if err := s.call(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if paths[i] != s.want {
			t.Errorf("%s path = %q, want %q", s.name, paths[i], s.want)
		}
	}
}

func TestUpstreamErrorCarriesStatusAndBody(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"invalid destination"}]}`))
	})

	err := p.Hangup(context.Background(), "tx-err")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if ue.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", ue.Status)
	}
	if !strings.Contains(ue.Body, "invalid destination") {
		t.Errorf("Body = %q", ue.Body)
	}
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	p := NewTelnyxProvider(config.TelnyxConfig{
		APIKey:     "KEY123",
		APIBaseURL: srv.URL,
	}, "").WithHTTPClient(srv.Client())
	srv.Close() // nothing listening anymore

	err := p.Answer(context.Background(), "tx-gone")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
}

func TestNotConfigured(t *testing.T) {
	p := NewTelnyxProvider(config.TelnyxConfig{APIBaseURL: "https://api.telnyx.com/v2"}, "")
	if p.Configured() {
		t.Error("Configured() = true without api key")
	}
	if _, err := p.Initiate(context.Background(), "+1", "+2"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Initiate = %v, want ErrNotConfigured", err)
	}
}
