package ui

import (
	"testing"
	"time"

	"github.com/five82/tether/internal/state"
)

var testFlags = state.ParseFlagTable(map[string]int{
	"TYPE_MASK":    31,
	"OUTGOING":     32,
	"NICKFLAG":     64,
	"CONNECTING":   1,
	"CONNECTED":    2,
	"DISCONNECTED": 3,
	"INITTOPIC":    4,
	"INITNOTOPIC":  5,
	"JOIN":         6,
	"KICK":         7,
	"MODE":         8,
	"NAMES":        9,
	"NICK":         10,
	"NOTICE":       11,
	"PART":         12,
	"PRIVMSG":      13,
	"QUIT":         14,
	"SERVERREPLY":  15,
	"TOPIC":        16,
})

func TestFormatDate(t *testing.T) {
	// 2024-03-04 05:06:07 UTC, a Monday.
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC).Unix()

	if got := formatDate(ts, false, time.UTC); got != "04-Mon 05:06:07" {
		t.Fatalf("formatDate full = %q, want %q", got, "04-Mon 05:06:07")
	}
	if got := formatDate(ts, true, time.UTC); got != "05:06" {
		t.Fatalf("formatDate compact = %q, want %q", got, "05:06")
	}
}

func TestDescribeLine(t *testing.T) {
	tests := []struct {
		name    string
		flags   int
		payload []string
		who     string
		text    string
		action  bool
	}{
		{"privmsg", 13, []string{"alice", "hi\tthere"}, "alice", "hi there", false},
		{"ctcp action", 13, []string{"alice", "\x01ACTION waves\x01"}, "*", "alice waves", true},
		{"notice", 11, []string{"server", "maintenance"}, "(server)", "maintenance", false},
		{"nick", 10, []string{"alice", "alicia"}, "*", "alice changed their name to alicia", false},
		{"join", 6, []string{"bob"}, "*", "bob joined the channel", false},
		{"part", 12, []string{"bob"}, "*", "bob left the channel", false},
		{"quit", 14, []string{"bob", "bye"}, "*", "bob has quit: bye", false},
		{"kick", 7, []string{"bob", "op", "spam"}, "*", "op kicked bob: spam", false},
		{"topic", 16, []string{"op", "Go!"}, "*", "op set the channel topic to: Go!", false},
		{"init topic", 4, []string{"Go!"}, "*", "The channel topic is: Go!", false},
		{"no topic", 5, nil, "*", "No channel topic is set", false},
		{"names", 9, []string{"a", "b"}, "*", "Users in channel: a b", false},
		{"server reply", 15, []string{"001", "Welcome"}, "*", "Welcome", false},
		{"outgoing bits ignored", 13 | 32 | 64, []string{"me", "hey"}, "me", "hey", false},
		{"unknown", 0, []string{"WEIRD", "x"}, "RAW", "WEIRD x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := describeLine(testFlags, state.Line{Flags: tt.flags, Payload: tt.payload})
			if v.who != tt.who || v.text != tt.text || v.action != tt.action {
				t.Fatalf("describeLine = {%q %q %v}, want {%q %q %v}", v.who, v.text, v.action, tt.who, tt.text, tt.action)
			}
		})
	}
}

func TestDescribeLine_PayloadNamedKind(t *testing.T) {
	v := describeLine(state.FlagTable{}, state.Line{Payload: []string{"JOIN", "carol"}})
	if v.kind != state.KindJoin || v.text != "carol joined the channel" {
		t.Fatalf("describeLine = %+v, want JOIN by carol", v)
	}
}

func TestSanitizeAndTruncate(t *testing.T) {
	if got := sanitize("\x02bold\x02\tx"); got != "bold x" {
		t.Fatalf("sanitize = %q, want %q", got, "bold x")
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate = %q, want %q", got, "abc...")
	}
	if got := padRight("ab", 4); got != "ab  " {
		t.Fatalf("padRight = %q, want %q", got, "ab  ")
	}
}
