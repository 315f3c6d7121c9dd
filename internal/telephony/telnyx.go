package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"softphone/internal/config"
)

// TelnyxProvider drives the Telnyx Call Control v2 REST API.
//
// Every action is a single bearer-authenticated HTTPS request; a failed
// request surfaces immediately as UpstreamError or TransportError.
type TelnyxProvider struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	connectionID string
	webhookURL   string
}

func NewTelnyxProvider(cfg config.TelnyxConfig, webhookURL string) *TelnyxProvider {
	return &TelnyxProvider{
		client:       &http.Client{Timeout: 15 * time.Second},
		baseURL:      cfg.APIBaseURL,
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		webhookURL:   webhookURL,
	}
}

// WithHTTPClient overrides the HTTP client. Test hook.
func (p *TelnyxProvider) WithHTTPClient(c *http.Client) *TelnyxProvider {
	p.client = c
	return p
}

func (p *TelnyxProvider) Name() string { return "telnyx" }

// Configured reports whether an API key is present. Without one every
// action fails with ErrNotConfigured.
func (p *TelnyxProvider) Configured() bool { return p.apiKey != "" }

type telnyxCallData struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id,omitempty"`
	CallSessionID string `json:"call_session_id,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Direction     string `json:"direction,omitempty"`
	State         string `json:"state,omitempty"`
}

func (p *TelnyxProvider) Initiate(ctx context.Context, from, to string) (string, error) {
	body := map[string]string{
		"from":          from,
		"to":            to,
		"connection_id": p.connectionID,
		"webhook_url":   p.webhookURL,
	}
	var out struct {
		Data telnyxCallData `json:"data"`
	}
	if err := p.do(ctx, http.MethodPost, "/calls", body, &out); err != nil {
		return "", err
	}
	return out.Data.CallControlID, nil
}

func (p *TelnyxProvider) Answer(ctx context.Context, providerCallID string) error {
	return p.action(ctx, providerCallID, "answer", nil)
}

func (p *TelnyxProvider) Hangup(ctx context.Context, providerCallID string) error {
	return p.action(ctx, providerCallID, "hangup", nil)
}

func (p *TelnyxProvider) SetHold(ctx context.Context, providerCallID string, hold bool) error {
	if hold {
		return p.action(ctx, providerCallID, "hold", nil)
	}
	return p.action(ctx, providerCallID, "unhold", nil)
}

func (p *TelnyxProvider) SetMute(ctx context.Context, providerCallID string, mute bool) error {
	if mute {
		return p.action(ctx, providerCallID, "mute", nil)
	}
	return p.action(ctx, providerCallID, "unmute", nil)
}

func (p *TelnyxProvider) Transfer(ctx context.Context, providerCallID, to string) error {
	return p.action(ctx, providerCallID, "transfer", map[string]string{"to": to})
}

func (p *TelnyxProvider) Bridge(ctx context.Context, providerCallID, otherCallID string) error {
	return p.action(ctx, providerCallID, "bridge", map[string]string{"call_control_id": otherCallID})
}

func (p *TelnyxProvider) action(ctx context.Context, providerCallID, name string, body any) error {
	path := fmt.Sprintf("/calls/%s/actions/%s", providerCallID, name)
	return p.do(ctx, http.MethodPost, path, body, nil)
}

func (p *TelnyxProvider) do(ctx context.Context, method, path string, body, out any) error {
	if p.apiKey == "" {
		return ErrNotConfigured
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return &UpstreamError{Status: resp.StatusCode, Body: string(b)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("telephony: decode %s response: %w", path, err)
		}
	}
	return nil
}
