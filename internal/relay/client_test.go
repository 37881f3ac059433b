package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultRelayAddr {
		t.Fatalf("host = %q, want %q", u.Host, defaultRelayAddr)
	}
	if u.Path != "/" {
		t.Fatalf("path = %q, want /", u.Path)
	}

	u, err = parseBaseURL("https://example.com:1234/mamirc?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "/mamirc/" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestParseBaseURL_RejectsMissingHost(t *testing.T) {
	if _, err := parseBaseURL("http:///only-path"); err == nil {
		t.Fatalf("parseBaseURL returned nil error, want missing host")
	}
}

func TestClient_GetStateSendsCookieAndDecodesSnapshot(t *testing.T) {
	t.Parallel()

	var gotCookie, gotUserAgent, gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUserAgent = r.Header.Get("User-Agent")
		if c, err := r.Cookie("password"); err == nil {
			gotCookie = c.Value
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"nextUpdateId": 5,
			"csrfToken": "tok",
			"flagsConstants": {"TYPE_MASK": 31, "OUTGOING": 32, "PRIVMSG": 13},
			"connections": {"net1": {"currentNickname": "me", "channels": {"#chan": {"members": ["me", "alice"], "topic": null}}}},
			"windows": [["net1", "#chan", {"lines": [[1, 6, 1000, "alice"], [2, 12, 5, "connect", 6697, true, null]], "markedReadUntil": 1}]],
			"initialWindow": ["net1", "#chan"]
		}`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL+"/relay", WithPassword("hunter2"))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	snap, err := c.GetState(ctx, 3000)
	if err != nil {
		t.Fatalf("GetState returned error: %v", err)
	}
	if gotPath != "/relay/get-state.json" {
		t.Fatalf("path = %q, want /relay/get-state.json", gotPath)
	}
	if gotCookie != "hunter2" {
		t.Fatalf("password cookie = %q, want hunter2", gotCookie)
	}
	if !strings.HasPrefix(gotUserAgent, "tether/") {
		t.Fatalf("User-Agent = %q, want tether/*", gotUserAgent)
	}
	if gotBody["maxMessagesPerWindow"] != float64(3000) {
		t.Fatalf("maxMessagesPerWindow = %v, want 3000", gotBody["maxMessagesPerWindow"])
	}
	if snap.NextUpdateID != 5 || snap.CSRFToken != "tok" {
		t.Fatalf("snapshot header = %d/%q, want 5/tok", snap.NextUpdateID, snap.CSRFToken)
	}
	if len(snap.Windows) != 1 || snap.Windows[0].Party != "#chan" || snap.Windows[0].MarkedReadUntil != 1 {
		t.Fatalf("windows = %#v", snap.Windows)
	}
	lines := snap.Windows[0].Lines
	if len(lines) != 2 || lines[1].TimeDelta != 5 {
		t.Fatalf("lines = %#v", lines)
	}
	if got := strings.Join(lines[1].Payload, ","); got != "connect,6697,true," {
		t.Fatalf("payload = %q, want scalar values flattened", got)
	}
	if snap.InitialWindow == nil || snap.InitialWindow.Profile != "net1" {
		t.Fatalf("initialWindow = %#v", snap.InitialWindow)
	}
	conn := snap.Connections["net1"]
	if conn.CurrentNickname == nil || *conn.CurrentNickname != "me" {
		t.Fatalf("currentNickname = %v", conn.CurrentNickname)
	}
	if ch := conn.Channels["#chan"]; len(ch.Members) != 2 || ch.Topic != nil {
		t.Fatalf("channel = %#v", ch)
	}
}

func TestClient_GetStateStringReplyIsAuthError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"Authentication error"`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.GetState(context.Background(), 10)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("GetState error = %v, want *AuthError", err)
	}
	if authErr.Message != "Authentication error" {
		t.Fatalf("message = %q", authErr.Message)
	}
	if !IsAuthError(err) {
		t.Fatalf("IsAuthError = false, want true")
	}
}

func TestClient_GetUpdatesOutcomes(t *testing.T) {
	t.Parallel()

	var reply string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if reply == "500" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	tests := []struct {
		name  string
		reply string
		want  PollKind
	}{
		{"batch", `{"nextUpdateId": 7, "updates": [["MYNICK", "net1", "bob"]]}`, PollUpdated},
		{"expired long poll", `{"nextUpdateId": 6, "updates": []}`, PollUpdated},
		{"desync", `null`, PollDesynced},
		{"auth string", `"Authentication error"`, PollFailed},
		{"http error", "500", PollFailed},
		{"garbage", `{"updates": [`, PollFailed},
	}
	for _, tt := range tests {
		reply = tt.reply
		res := c.GetUpdates(context.Background(), 6, 50*time.Millisecond)
		if res.Kind != tt.want {
			t.Fatalf("%s: kind = %v (err %v), want %v", tt.name, res.Kind, res.Err, tt.want)
		}
		if tt.want == PollFailed && res.Err == nil {
			t.Fatalf("%s: PollFailed without error", tt.name)
		}
	}
	if gotBody["nextUpdateId"] != float64(6) || gotBody["maxWait"] != float64(50) {
		t.Fatalf("request body = %v, want cursor 6 and maxWait 50", gotBody)
	}
}

func TestClient_GetUpdatesTimeoutIsFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithTimeouts(Timeouts{PollMargin: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	res := c.GetUpdates(context.Background(), 0, time.Millisecond)
	if res.Kind != PollFailed {
		t.Fatalf("kind = %v, want failed", res.Kind)
	}
}

func TestClient_DoActionsEncodesTuples(t *testing.T) {
	t.Parallel()

	var gotBody struct {
		Payload      [][]any `json:"payload"`
		NextUpdateID int64   `json:"nextUpdateId"`
		CSRFToken    string  `json:"csrfToken"`
	}
	reply := `"OK"`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	actions := []Action{
		SendLine("net1", "PRIVMSG #chan :hi"),
		MarkReadAction("net1", "#chan", 12),
	}
	if err := c.DoActions(context.Background(), actions, 9, "tok"); err != nil {
		t.Fatalf("DoActions returned error: %v", err)
	}
	if gotBody.NextUpdateID != 9 || gotBody.CSRFToken != "tok" {
		t.Fatalf("header = %d/%q, want 9/tok", gotBody.NextUpdateID, gotBody.CSRFToken)
	}
	if len(gotBody.Payload) != 2 || gotBody.Payload[0][0] != "send-line" || gotBody.Payload[1][3] != float64(12) {
		t.Fatalf("payload = %v", gotBody.Payload)
	}

	reply = `"CSRF check failed"`
	err = c.DoActions(context.Background(), actions, 9, "bad")
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Message != "CSRF check failed" {
		t.Fatalf("DoActions error = %v, want ActionError", err)
	}
}

func TestClient_DoActionsEmptyIsNoop(t *testing.T) {
	c, err := NewClient("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if err := c.DoActions(context.Background(), nil, 0, ""); err != nil {
		t.Fatalf("DoActions(nil) = %v, want nil", err)
	}
}

func TestClient_GetTime(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `1700000000123`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	got, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime returned error: %v", err)
	}
	if got.UnixMilli() != 1700000000123 {
		t.Fatalf("GetTime = %d, want 1700000000123", got.UnixMilli())
	}
}

func TestAction_String(t *testing.T) {
	got := MarkReadAction("net1", "#chan", 4).String()
	if got != `mark-read "net1" "#chan" 4` {
		t.Fatalf("String() = %q", got)
	}
}
