package state

import (
	"slices"
	"sort"
)

// Line is a stored message line with its absolute timestamp.
type Line struct {
	Sequence  int64
	Flags     int
	Timestamp int64
	Payload   []string
}

// Window is a copy of one window's state handed out to readers.
type Window struct {
	Key             WindowKey
	Lines           []Line
	MarkedReadUntil int64
	NumNewMessages  int
	IsNickflagged   bool
	IsMuted         bool
}

// IsRead reports whether line is below the read marker.
func (w Window) IsRead(line Line) bool {
	return line.Sequence < w.MarkedReadUntil
}

// WindowSummary is the per-window data needed to draw a window list.
type WindowSummary struct {
	Key            WindowKey
	NumLines       int
	NumNewMessages int
	IsNickflagged  bool
	IsMuted        bool
}

// Connection is a copy of one profile's session state.
type Connection struct {
	Profile  string
	Nickname string // empty until the relay reports one
	Channels map[string]Channel
}

// Channel is a copy of a joined channel.
type Channel struct {
	Name    string
	Members []string // sorted
	Topic   *string
}

type window struct {
	key             WindowKey
	lines           []Line
	markedReadUntil int64
	numNewMessages  int
	isNickflagged   bool
	isMuted         bool
	// decodeBase is the absolute timestamp of the last line appended, kept
	// across truncation so later deltas still decode.
	decodeBase int64
}

func (w *window) snapshot() Window {
	return Window{
		Key:             w.key,
		Lines:           slices.Clone(w.lines),
		MarkedReadUntil: w.markedReadUntil,
		NumNewMessages:  w.numNewMessages,
		IsNickflagged:   w.isNickflagged,
		IsMuted:         w.isMuted,
	}
}

func (w *window) summary() WindowSummary {
	return WindowSummary{
		Key:            w.key,
		NumLines:       len(w.lines),
		NumNewMessages: w.numNewMessages,
		IsNickflagged:  w.isNickflagged,
		IsMuted:        w.isMuted,
	}
}

// truncate drops the oldest lines beyond limit.
func (w *window) truncate(limit int) {
	if n := len(w.lines) - limit; n > 0 {
		w.lines = w.lines[n:]
	}
}

// clearBelow drops lines whose sequence is below seq and returns how many went.
func (w *window) clearBelow(seq int64) int {
	i := 0
	for i < len(w.lines) && w.lines[i].Sequence < seq {
		i++
	}
	w.lines = w.lines[i:]
	return i
}

func (w *window) resetCounters() bool {
	changed := w.numNewMessages != 0 || w.isNickflagged
	w.numNewMessages = 0
	w.isNickflagged = false
	return changed
}

type connection struct {
	profile  string
	nickname string
	channels map[string]*channel
}

func newConnection(profile string) *connection {
	return &connection{profile: profile, channels: make(map[string]*channel)}
}

func (c *connection) snapshot() Connection {
	out := Connection{
		Profile:  c.profile,
		Nickname: c.nickname,
		Channels: make(map[string]Channel, len(c.channels)),
	}
	for name, ch := range c.channels {
		out.Channels[name] = ch.snapshot()
	}
	return out
}

type channel struct {
	name    string
	members map[string]struct{}
	topic   *string
}

func newChannel(name string) *channel {
	return &channel{name: name, members: make(map[string]struct{})}
}

func (c *channel) snapshot() Channel {
	members := make([]string, 0, len(c.members))
	for m := range c.members {
		members = append(members, m)
	}
	sort.Strings(members)
	out := Channel{Name: c.name, Members: members}
	if c.topic != nil {
		topic := *c.topic
		out.Topic = &topic
	}
	return out
}

func (c *channel) setMembers(names []string) {
	c.members = make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			c.members[n] = struct{}{}
		}
	}
}
