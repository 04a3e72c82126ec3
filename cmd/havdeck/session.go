package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// Device HTTP session API
// ============================================================================
// The appliance uses a cookie-style session: POST /api/session with the
// credentials yields an opaque sessionID, which later privileged calls carry
// as "Cookie: sessionID=<token>". Logout and reboot are best-effort from the
// daemon's point of view; local state never waits on their outcome.
// ============================================================================

// DeviceAPI is the HTTP surface the effects executor drives. The interface
// exists so tests can substitute a fake.
type DeviceAPI interface {
	Login(ctx context.Context) (string, error)
	Logout(ctx context.Context, token string) error
	Reboot(ctx context.Context, token string) error
	FetchImage(ctx context.Context, path string) ([]byte, error)
}

// HaivisionAPI is the production DeviceAPI implementation.
type HaivisionAPI struct {
	baseURL      string
	username     string
	password     string
	loginTimeout time.Duration
	client       *http.Client
	logger       *slog.Logger
}

// NewHaivisionAPI builds a client for one device.
func NewHaivisionAPI(cfg DeviceConfig, logger *slog.Logger) *HaivisionAPI {
	scheme := "http"
	if cfg.HTTPS {
		scheme = "https"
	}
	return &HaivisionAPI{
		baseURL:      fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		username:     cfg.Username,
		password:     cfg.Password,
		loginTimeout: time.Duration(cfg.LoginTimeoutMS) * time.Millisecond,
		client:       &http.Client{},
		logger:       logger,
	}
}

// loginResponse is the wire shape of a successful login.
type loginResponse struct {
	Response struct {
		SessionID string `json:"sessionID"`
	} `json:"response"`
}

// Login issues the credentialed POST with a bounded timeout and returns the
// session token. Any non-200 status, timeout, or network error is a failure.
func (a *HaivisionAPI) Login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.loginTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"username": a.username,
		"password": a.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+sessionPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: HTTP %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if lr.Response.SessionID == "" {
		return "", fmt.Errorf("login: response carried no sessionID")
	}

	return lr.Response.SessionID, nil
}

// Logout deletes the server-side session. Callers treat failure as
// log-and-forget; the local session is already gone.
func (a *HaivisionAPI) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+sessionPath, nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Cookie", sessionCookie(token))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Reboot asks the device to reboot. Best-effort: the device usually drops
// the connection before answering properly.
func (a *HaivisionAPI) Reboot(ctx context.Context, token string) error {
	body := bytes.NewReader([]byte(`{"id":0}`))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+rebootPath, body)
	if err != nil {
		return fmt.Errorf("build reboot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", sessionCookie(token))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("reboot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("reboot: HTTP %d", resp.StatusCode)
	}
	return nil
}

// FetchImage GETs a raw image from the device.
func (a *HaivisionAPI) FetchImage(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return data, nil
}

func sessionCookie(token string) string {
	return "sessionID=" + token
}
