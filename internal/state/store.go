package state

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/five82/tether/internal/relay"
)

// DefaultMaxLines is the per-window line cap used when none is configured.
const DefaultMaxLines = 3000

var (
	// ErrNotLoaded is returned when updates arrive before a snapshot.
	ErrNotLoaded = errors.New("state not loaded")
	// ErrStaleBatch is returned when a batch does not continue from the
	// store's cursor.
	ErrStaleBatch = errors.New("stale update batch")
)

// DuplicateWindowError reports a snapshot that lists the same window twice.
type DuplicateWindowError struct {
	Key WindowKey
}

func (e *DuplicateWindowError) Error() string {
	return fmt.Sprintf("snapshot lists window %s twice", e.Key)
}

// UnknownTargetError reports an update for a window, connection or channel
// the store does not hold.
type UnknownTargetError struct {
	Op     relay.Op
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("%s: no such target %s", e.Op, e.Target)
}

// Store holds the client's replica of the relay session. All methods are
// safe for concurrent use; readers receive copies.
type Store struct {
	mu sync.RWMutex

	maxLines   int
	loaded     bool
	generation uint64
	cursor     int64
	csrfToken  string
	flags      FlagTable

	windows     map[WindowKey]*window
	order       []WindowKey
	active      WindowKey
	hasActive   bool
	connections map[string]*connection

	// muted survives Reset so a resync keeps the user's mute choices.
	muted map[WindowKey]bool
}

// NewStore returns a Store capping each window at maxLines. A non-positive
// maxLines selects DefaultMaxLines. The zero Store is also usable.
func NewStore(maxLines int) *Store {
	return &Store{maxLines: maxLines}
}

func (s *Store) lineCap() int {
	if s.maxLines <= 0 {
		return DefaultMaxLines
	}
	return s.maxLines
}

// MaxLines returns the per-window line cap.
func (s *Store) MaxLines() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lineCap()
}

// LoadSnapshot replaces the whole store with snap. On error the store is left
// unchanged.
func (s *Store) LoadSnapshot(snap *relay.StateResponse) (ChangeSet, error) {
	if snap == nil {
		return ChangeSet{}, errors.New("load snapshot: nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.lineCap()
	windows := make(map[WindowKey]*window, len(snap.Windows))
	order := make([]WindowKey, 0, len(snap.Windows))
	for _, ws := range snap.Windows {
		key := Key(ws.Profile, ws.Party)
		if _, dup := windows[key]; dup {
			return ChangeSet{}, &DuplicateWindowError{Key: key}
		}
		w := &window{
			key:             key,
			lines:           make([]Line, 0, min(len(ws.Lines), limit)),
			markedReadUntil: ws.MarkedReadUntil,
			isMuted:         s.isMuted(key),
		}
		for _, rl := range ws.Lines {
			w.decodeBase += rl.TimeDelta
			w.lines = append(w.lines, Line{
				Sequence:  rl.Sequence,
				Flags:     rl.Flags,
				Timestamp: w.decodeBase,
				Payload:   rl.Payload,
			})
		}
		w.truncate(limit)
		windows[key] = w
		order = append(order, key)
	}
	slices.SortFunc(order, WindowKey.Compare)

	connections := make(map[string]*connection, len(snap.Connections))
	for profile, cs := range snap.Connections {
		conn := newConnection(profile)
		if cs.CurrentNickname != nil {
			conn.nickname = *cs.CurrentNickname
		}
		for name, chs := range cs.Channels {
			ch := newChannel(name)
			ch.setMembers(chs.Members)
			if chs.Topic != nil {
				topic := *chs.Topic
				ch.topic = &topic
			}
			conn.channels[name] = ch
		}
		connections[profile] = conn
	}

	s.windows = windows
	s.order = order
	s.connections = connections
	s.flags = ParseFlagTable(snap.FlagsConstants)
	s.cursor = snap.NextUpdateID
	s.csrfToken = snap.CSRFToken
	s.hasActive = false
	s.active = WindowKey{}
	if ref := snap.InitialWindow; ref != nil {
		key := Key(ref.Profile, ref.Party)
		if _, ok := windows[key]; ok {
			s.active, s.hasActive = key, true
		}
	}
	s.loaded = true
	s.generation++

	return ChangeSet{Reloaded: true, WindowList: true, Active: true}, nil
}

// Reset discards all session data. Mute choices are kept for the next load.
func (s *Store) Reset() ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows = nil
	s.order = nil
	s.connections = nil
	s.active = WindowKey{}
	s.hasActive = false
	s.cursor = 0
	s.csrfToken = ""
	s.flags = FlagTable{}
	s.loaded = false
	s.generation++
	return ChangeSet{Reloaded: true, WindowList: true, Active: true}
}

// Loaded reports whether a snapshot is installed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Generation increments on every snapshot load and reset.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Cursor returns the next update id to request.
func (s *Store) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// CSRFToken returns the token for action submissions.
func (s *Store) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken
}

// Flags returns the flag table from the last snapshot.
func (s *Store) Flags() FlagTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// WindowKeys returns all window keys in sorted order.
func (s *Store) WindowKeys() []WindowKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Summaries returns per-window list data in sorted order.
func (s *Store) Summaries() []WindowSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WindowSummary, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.windows[key].summary())
	}
	return out
}

// Window returns a copy of the window for key.
func (s *Store) Window(key WindowKey) (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[key]
	if !ok {
		return Window{}, false
	}
	return w.snapshot(), true
}

// Active returns the active window key, if any.
func (s *Store) Active() (WindowKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.hasActive
}

// Profiles returns the profiles with a live connection, sorted.
func (s *Store) Profiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.connections))
	for p := range s.connections {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Connection returns a copy of the connection for profile.
func (s *Store) Connection(profile string) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[profile]
	if !ok {
		return Connection{}, false
	}
	return c.snapshot(), true
}

// SetActive selects key as the active window and clears its unread state.
func (s *Store) SetActive(key WindowKey) (ChangeSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return ChangeSet{}, false
	}
	var cs ChangeSet
	s.activate(w, &cs)
	return cs, true
}

// SetMuted mutes or unmutes a window. Muting clears its unread state.
func (s *Store) SetMuted(key WindowKey, muted bool) (ChangeSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return ChangeSet{}, false
	}
	if s.muted == nil {
		s.muted = make(map[WindowKey]bool)
	}
	if muted {
		s.muted[key] = true
	} else {
		delete(s.muted, key)
	}
	w.isMuted = muted
	if muted {
		w.resetCounters()
	}
	return ChangeSet{Windows: []WindowKey{key}}, true
}

func (s *Store) isMuted(key WindowKey) bool {
	return s.muted[key]
}

func (s *Store) isActive(key WindowKey) bool {
	return s.hasActive && s.active == key
}

func (s *Store) activate(w *window, cs *ChangeSet) {
	if !s.isActive(w.key) {
		s.active, s.hasActive = w.key, true
		cs.Active = true
	}
	if w.resetCounters() {
		cs.addWindow(w.key)
	}
}

// ensureWindow returns the window for key, inserting it in sorted position
// when absent.
func (s *Store) ensureWindow(key WindowKey, cs *ChangeSet) *window {
	if w, ok := s.windows[key]; ok {
		return w
	}
	if s.windows == nil {
		s.windows = make(map[WindowKey]*window)
	}
	w := &window{key: key, isMuted: s.isMuted(key)}
	s.windows[key] = w
	i, _ := slices.BinarySearchFunc(s.order, key, WindowKey.Compare)
	s.order = slices.Insert(s.order, i, key)
	cs.WindowList = true
	cs.addWindow(key)
	return w
}

func (s *Store) removeWindow(key WindowKey, cs *ChangeSet) {
	i, found := slices.BinarySearchFunc(s.order, key, WindowKey.Compare)
	if !found {
		return
	}
	delete(s.windows, key)
	s.order = slices.Delete(s.order, i, i+1)
	cs.WindowList = true
	if !s.isActive(key) {
		return
	}
	cs.Active = true
	if len(s.order) == 0 {
		s.active, s.hasActive = WindowKey{}, false
		return
	}
	next := s.windows[s.order[min(i, len(s.order)-1)]]
	s.activate(next, cs)
}
