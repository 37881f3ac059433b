package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport defines the relay calls used by the syncer and the action
// dispatcher. It is implemented by *Client and can be faked in tests.
type Transport interface {
	GetState(ctx context.Context, maxLinesPerWindow int) (*StateResponse, error)
	GetUpdates(ctx context.Context, nextUpdateID int64, maxWait time.Duration) PollResult
	DoActions(ctx context.Context, actions []Action, nextUpdateID int64, csrfToken string) error
	GetTime(ctx context.Context) (time.Time, error)
}

// Ensure Client implements Transport at compile time.
var _ Transport = (*Client)(nil)

// Client talks to the relay's JSON endpoints.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	password  string
	userAgent string
	timeouts  Timeouts
}

// Timeouts are the per-request budgets. A long poll may take up to its
// max-wait hint plus PollMargin.
type Timeouts struct {
	Snapshot   time.Duration
	Action     time.Duration
	PollMargin time.Duration
}

const (
	defaultRelayAddr       = "127.0.0.1:11972"
	defaultUserAgent       = "tether/0.1"
	defaultSnapshotTimeout = 10 * time.Second
	defaultActionTimeout   = 5 * time.Second
	defaultPollMargin      = 20 * time.Second
	maxPollWait            = 300 * time.Second
	passwordCookie         = "password"
)

// Option customizes a Client.
type Option func(*Client)

// WithPassword sets the password cookie sent with every request.
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithTimeouts overrides the per-request budgets; zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		if t.Snapshot > 0 {
			c.timeouts.Snapshot = t.Snapshot
		}
		if t.Action > 0 {
			c.timeouts.Action = t.Action
		}
		if t.PollMargin > 0 {
			c.timeouts.PollMargin = t.PollMargin
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for relayURL, which may be a full URL or host:port.
func NewClient(relayURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(relayURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		timeouts: Timeouts{
			Snapshot:   defaultSnapshotTimeout,
			Action:     defaultActionTimeout,
			PollMargin: defaultPollMargin,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized relay address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// GetState fetches a full snapshot. A string reply is returned as *AuthError.
func (c *Client) GetState(ctx context.Context, maxLinesPerWindow int) (*StateResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	req := map[string]any{"maxMessagesPerWindow": maxLinesPerWindow}
	raw, err := c.post(ctx, "get-state.json", c.timeouts.Snapshot, req)
	if err != nil {
		return nil, err
	}
	if msg, ok := stringReply(raw); ok {
		return nil, &AuthError{Endpoint: "get-state.json", Message: msg}
	}
	var payload StateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &payload, nil
}

// GetUpdates long-polls for updates after nextUpdateID. It never returns an
// error directly; failures are reported as PollFailed.
func (c *Client) GetUpdates(ctx context.Context, nextUpdateID int64, maxWait time.Duration) PollResult {
	if c == nil {
		return PollResult{Kind: PollFailed, Err: fmt.Errorf("client is nil")}
	}
	maxWait = clampWait(maxWait)
	req := map[string]any{
		"nextUpdateId": nextUpdateID,
		"maxWait":      maxWait.Milliseconds(),
	}
	raw, err := c.post(ctx, "get-updates.json", maxWait+c.timeouts.PollMargin, req)
	if err != nil {
		return PollResult{Kind: PollFailed, Err: err}
	}
	if isNull(raw) {
		return PollResult{Kind: PollDesynced}
	}
	if msg, ok := stringReply(raw); ok {
		return PollResult{Kind: PollFailed, Err: &AuthError{Endpoint: "get-updates.json", Message: msg}}
	}
	var batch UpdateBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return PollResult{Kind: PollFailed, Err: fmt.Errorf("decode response: %w", err)}
	}
	return PollResult{Kind: PollUpdated, Batch: batch}
}

// DoActions submits actions. The relay's "OK" maps to nil; any other string
// is returned as *ActionError.
func (c *Client) DoActions(ctx context.Context, actions []Action, nextUpdateID int64, csrfToken string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if len(actions) == 0 {
		return nil
	}
	req := map[string]any{
		"payload":      actions,
		"nextUpdateId": nextUpdateID,
		"csrfToken":    csrfToken,
	}
	raw, err := c.post(ctx, "do-actions.json", c.timeouts.Action, req)
	if err != nil {
		return err
	}
	msg, ok := stringReply(raw)
	if !ok {
		return fmt.Errorf("decode response: want string, got %s", truncate(raw, 64))
	}
	if msg != "OK" {
		return &ActionError{Message: msg}
	}
	return nil
}

// GetTime returns the relay's clock.
func (c *Client) GetTime(ctx context.Context) (time.Time, error) {
	if c == nil {
		return time.Time{}, fmt.Errorf("client is nil")
	}
	raw, err := c.post(ctx, "get-time.json", c.timeouts.Action, struct{}{})
	if err != nil {
		return time.Time{}, err
	}
	if msg, ok := stringReply(raw); ok {
		return time.Time{}, &AuthError{Endpoint: "get-time.json", Message: msg}
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err != nil {
		return time.Time{}, fmt.Errorf("decode response: %w", err)
	}
	return time.UnixMilli(millis), nil
}

func (c *Client) post(ctx context.Context, endpoint string, timeout time.Duration, body any) (json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.password != "" {
		req.AddCookie(&http.Cookie{Name: passwordCookie, Value: c.password})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("relay %s returned status %d", endpoint, resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

func stringReply(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func clampWait(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return time.Millisecond
	}
	if d > maxPollWait {
		return maxPollWait
	}
	return d
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}

// IsAuthError reports whether err came from a rejected password.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func parseBaseURL(relayURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(relayURL)
	if trimmed == "" {
		trimmed = defaultRelayAddr
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse relay_url %q: %w", relayURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse relay_url %q: missing host", relayURL)
	}
	// Keep a path prefix so a relay mounted behind a proxy resolves correctly.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
