package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"softphone/internal/calls"
	"softphone/internal/contacts"
)

var (
	ErrNotConnected = errors.New("dialer: transport not connected")

	// ErrCallNotFound mirrors the server's 404 for unknown call handles.
	ErrCallNotFound = errors.New("dialer: call not found")
)

// APIError is any non-success response from the dialer API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dialer: api error %d: %s", e.Status, e.Message)
}

// APIClient talks to the softphone REST API on behalf of one user.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client. Test hook.
func (a *APIClient) WithHTTPClient(c *http.Client) *APIClient {
	a.client = c
	return a
}

type LoginResult struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a token and stores it for later
// requests.
func (a *APIClient) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	err := a.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	a.token = out.AccessToken
	return out, nil
}

func (a *APIClient) CreateCall(ctx context.Context, fromNumber, toNumber string) (calls.CallSession, error) {
	var out calls.CallSession
	err := a.do(ctx, http.MethodPost, "/api/calls", map[string]string{
		"direction":  string(calls.DirectionOutbound),
		"fromNumber": fromNumber,
		"toNumber":   toNumber,
	}, &out)
	return out, err
}

func (a *APIClient) Answer(ctx context.Context, callID string) (calls.CallSession, error) {
	var out calls.CallSession
	err := a.do(ctx, http.MethodPost, "/api/calls/"+callID+"/answer", nil, &out)
	return out, err
}

func (a *APIClient) Hangup(ctx context.Context, callID string) (calls.CallSession, error) {
	var out calls.CallSession
	err := a.do(ctx, http.MethodPost, "/api/calls/"+callID+"/hangup", nil, &out)
	return out, err
}

func (a *APIClient) SetHold(ctx context.Context, callID string, hold bool) error {
	return a.do(ctx, http.MethodPost, "/api/calls/"+callID+"/hold", map[string]bool{"hold": hold}, nil)
}

func (a *APIClient) SetMute(ctx context.Context, callID string, mute bool) error {
	return a.do(ctx, http.MethodPost, "/api/calls/"+callID+"/mute", map[string]bool{"mute": mute}, nil)
}

func (a *APIClient) Transfer(ctx context.Context, callID, toNumber string) error {
	return a.do(ctx, http.MethodPost, "/api/calls/"+callID+"/transfer", map[string]string{"toNumber": toNumber}, nil)
}

func (a *APIClient) ListCalls(ctx context.Context, userID string) ([]calls.CallSession, error) {
	var out []calls.CallSession
	err := a.do(ctx, http.MethodGet, "/api/calls/"+userID, nil, &out)
	return out, err
}

func (a *APIClient) ListContacts(ctx context.Context, userID string) ([]contacts.Contact, error) {
	var out []contacts.Contact
	err := a.do(ctx, http.MethodGet, "/api/contacts/"+userID, nil, &out)
	return out, err
}

func (a *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(b, &apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return ErrCallNotFound
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("dialer: decode %s response: %w", path, err)
		}
	}
	return nil
}
