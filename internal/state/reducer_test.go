package state

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/five82/tether/internal/relay"
)

func loaded(t *testing.T) *Store {
	t.Helper()
	s := NewStore(0)
	_, err := s.LoadSnapshot(baseSnapshot())
	require.NoError(t, err)
	return s
}

func TestApplyBatch_AppendAdvancesCursor(t *testing.T) {
	s := loaded(t)
	key := Key("net1", "#go")

	cs, err := s.ApplyBatch(5, relay.UpdateBatch{
		NextUpdateID: 6,
		Updates: []relay.Update{
			relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagPrivmsg, 500, "alice", "news")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), s.Cursor())
	assert.True(t, cs.TouchesWindow(key))

	w, ok := s.Window(key)
	require.True(t, ok)
	require.Len(t, w.Lines, 3)
	last := w.Lines[2]
	assert.Equal(t, int64(3), last.Sequence)
	assert.Equal(t, int64(1500), last.Timestamp)
	assert.Equal(t, 1, w.NumNewMessages)
}

func TestApplyBatch_StaleAndNotLoaded(t *testing.T) {
	var empty Store
	_, err := empty.ApplyBatch(0, relay.UpdateBatch{NextUpdateID: 1})
	assert.ErrorIs(t, err, ErrNotLoaded)

	s := loaded(t)
	batch := relay.UpdateBatch{
		NextUpdateID: 6,
		Updates: []relay.Update{
			relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagPrivmsg, 1, "a", "x")},
		},
	}
	_, err = s.ApplyBatch(5, batch)
	require.NoError(t, err)

	// Replaying the same batch must not duplicate lines.
	_, err = s.ApplyBatch(5, batch)
	assert.ErrorIs(t, err, ErrStaleBatch)
	w, _ := s.Window(Key("net1", "#go"))
	assert.Len(t, w.Lines, 3)
	assert.Equal(t, int64(6), s.Cursor())
}

func TestApplyBatch_EmptyBatchKeepsState(t *testing.T) {
	s := loaded(t)
	cs, err := s.ApplyBatch(5, relay.UpdateBatch{NextUpdateID: 5})
	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.Equal(t, int64(5), s.Cursor())
}

func TestApply_AppendCreatesWindowSorted(t *testing.T) {
	s := loaded(t)
	cs := s.Apply(relay.Append{Profile: "net1", Party: "bob", Line: line(10, flagPrivmsg, 7, "bob", "psst")})
	assert.True(t, cs.WindowList)

	s.Apply(relay.Append{Profile: "net0", Party: "", Line: line(1, 15, 3, "001", "welcome")})
	assert.Equal(t, []WindowKey{Key("net0", ""), Key("net1", "#go"), Key("net1", "bob")}, s.WindowKeys())

	w, _ := s.Window(Key("net1", "bob"))
	assert.Equal(t, int64(7), w.Lines[0].Timestamp)
}

func TestApply_Truncates(t *testing.T) {
	s := NewStore(3)
	_, err := s.LoadSnapshot(baseSnapshot())
	require.NoError(t, err)

	for i := int64(3); i < 10; i++ {
		s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(i, flagPrivmsg, 1, "a", "x")})
	}
	w, _ := s.Window(Key("net1", "#go"))
	require.Len(t, w.Lines, 3)
	assert.Equal(t, int64(7), w.Lines[0].Sequence)
	assert.Equal(t, int64(1007), w.Lines[2].Timestamp)
}

func TestApply_UnreadAccounting(t *testing.T) {
	key := Key("net1", "#go")

	t.Run("active outgoing resets", func(t *testing.T) {
		s := loaded(t)
		s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagPrivmsg|flagNickflag, 1, "a", "me!")})
		_, ok := s.SetActive(key)
		require.True(t, ok)
		s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(4, flagPrivmsg, 1, "a", "again")})
		w, _ := s.Window(key)
		require.Equal(t, 1, w.NumNewMessages)

		s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(5, flagPrivmsg|flagOutgoing, 1, "me", "reply")})
		w, _ = s.Window(key)
		assert.Equal(t, 0, w.NumNewMessages)
		assert.False(t, w.IsNickflagged)
	})

	t.Run("muted ignores", func(t *testing.T) {
		s := loaded(t)
		_, ok := s.SetMuted(key, true)
		require.True(t, ok)
		cs := s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagPrivmsg|flagNickflag, 1, "a", "me!")})
		w, _ := s.Window(key)
		assert.Equal(t, 0, w.NumNewMessages)
		assert.False(t, w.IsNickflagged)
		assert.Empty(t, cs.Highlights)
	})

	t.Run("nickflag highlights inactive", func(t *testing.T) {
		s := loaded(t)
		cs := s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagPrivmsg|flagNickflag, 1, "a", "me!")})
		w, _ := s.Window(key)
		assert.Equal(t, 1, w.NumNewMessages)
		assert.True(t, w.IsNickflagged)
		require.Len(t, cs.Highlights, 1)
		assert.Equal(t, key, cs.Highlights[0].Key)
		assert.Equal(t, []string{"a", "me!"}, cs.Highlights[0].Args)
	})

	t.Run("highlight args drop a leading subtype name", func(t *testing.T) {
		s := loaded(t)
		cs := s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagNickflag, 1, "PRIVMSG", "alice", "me!")})
		require.Len(t, cs.Highlights, 1)
		assert.Equal(t, []string{"alice", "me!"}, cs.Highlights[0].Args)
	})

	t.Run("non conversational lines", func(t *testing.T) {
		s := loaded(t)
		s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagJoin, 1, "carol")})
		w, _ := s.Window(key)
		assert.Equal(t, 0, w.NumNewMessages)
	})
}

func TestApply_MembershipFromLines(t *testing.T) {
	s := loaded(t)
	members := func() []string {
		c, ok := s.Connection("net1")
		require.True(t, ok)
		return c.Channels["#go"].Members
	}

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(3, flagJoin, 1, "carol")})
	assert.Equal(t, []string{"alice", "carol", "me"}, members())

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(4, flagNick, 1, "carol", "caroline")})
	assert.Equal(t, []string{"alice", "caroline", "me"}, members())

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(5, flagKick, 1, "caroline", "me", "bye")})
	assert.Equal(t, []string{"alice", "me"}, members())

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(6, flagQuit, 1, "alice", "gone")})
	assert.Equal(t, []string{"me"}, members())

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(7, flagPart, 1, "me")})
	assert.Empty(t, members())

	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(8, flagTopic, 1, "me", "new topic")})
	c, _ := s.Connection("net1")
	require.NotNil(t, c.Channels["#go"].Topic)
	assert.Equal(t, "new topic", *c.Channels["#go"].Topic)
}

func TestApply_ConnectionOps(t *testing.T) {
	s := loaded(t)

	s.Apply(relay.Connected{Profile: "net2"})
	c, ok := s.Connection("net2")
	require.True(t, ok)
	assert.Empty(t, c.Nickname)
	assert.Empty(t, c.Channels)

	s.Apply(relay.MyNick{Profile: "net2", Nickname: "me2"})
	s.Apply(relay.Joined{Profile: "net2", Channel: "#rust"})
	s.Apply(relay.Names{Profile: "net2", Channel: "#rust", Members: []string{"x", "me2"}})
	c, _ = s.Connection("net2")
	assert.Equal(t, "me2", c.Nickname)
	assert.Equal(t, []string{"me2", "x"}, c.Channels["#rust"].Members)

	s.Apply(relay.Kicked{Profile: "net2", Channel: "#rust"})
	c, _ = s.Connection("net2")
	assert.NotContains(t, c.Channels, "#rust")

	s.Apply(relay.Joined{Profile: "net2", Channel: "#c"})
	s.Apply(relay.Parted{Profile: "net2", Channel: "#c"})
	c, _ = s.Connection("net2")
	assert.Empty(t, c.Channels)

	disc := line(20, 3, 5)
	cs := s.Apply(relay.Disconnected{Profile: "net2", Party: "#rust", Line: &disc})
	assert.True(t, cs.TouchesWindow(Key("net2", "#rust")))
	_, ok = s.Connection("net2")
	assert.True(t, ok, "party-scoped DISCONNECTED keeps the connection")

	s.Apply(relay.Disconnected{Profile: "net2"})
	_, ok = s.Connection("net2")
	assert.False(t, ok)
	assert.Equal(t, []string{"net1"}, s.Profiles())
}

func TestApply_WindowOps(t *testing.T) {
	s := loaded(t)
	a, b, c := Key("net1", "#a"), Key("net1", "#go"), Key("net1", "#z")

	s.Apply(relay.OpenWin{Profile: "net1", Party: "#z"})
	cs := s.Apply(relay.OpenWin{Profile: "net1", Party: "#a"})
	assert.True(t, cs.Active)
	active, _ := s.Active()
	assert.Equal(t, a, active)
	assert.Equal(t, []WindowKey{a, b, c}, s.WindowKeys())

	// Closing the active window selects the neighbour at the same index.
	cs = s.Apply(relay.CloseWin{Profile: "net1", Party: "#a"})
	assert.True(t, cs.WindowList)
	active, _ = s.Active()
	assert.Equal(t, b, active)

	s.SetActive(c)
	s.Apply(relay.CloseWin{Profile: "net1", Party: "#z"})
	active, _ = s.Active()
	assert.Equal(t, b, active)

	s.Apply(relay.CloseWin{Profile: "net1", Party: "#go"})
	_, ok := s.Active()
	assert.False(t, ok)
	assert.Empty(t, s.WindowKeys())
}

func TestApply_MarkReadAndClearLines(t *testing.T) {
	s := loaded(t)
	key := Key("net1", "#go")

	s.Apply(relay.MarkRead{Profile: "net1", Party: "#go", Sequence: 10})
	w, _ := s.Window(key)
	assert.Equal(t, int64(10), w.MarkedReadUntil)

	s.Apply(relay.MarkRead{Profile: "net1", Party: "#go", Sequence: 1})
	w, _ = s.Window(key)
	assert.Equal(t, int64(1), w.MarkedReadUntil)

	s.Apply(relay.ClearLines{Profile: "net1", Party: "#go", Sequence: 2})
	w, _ = s.Window(key)
	require.Len(t, w.Lines, 1)
	assert.Equal(t, int64(2), w.Lines[0].Sequence)

	// Appends after a clear continue from the last decoded timestamp.
	s.Apply(relay.ClearLines{Profile: "net1", Party: "#go", Sequence: 100})
	s.Apply(relay.Append{Profile: "net1", Party: "#go", Line: line(100, flagPrivmsg, 1, "a", "x")})
	w, _ = s.Window(key)
	require.Len(t, w.Lines, 1)
	assert.Equal(t, int64(1001), w.Lines[0].Timestamp)
}

func TestApply_MarkReadIdempotent(t *testing.T) {
	s := loaded(t)
	key := Key("net1", "#go")

	first := s.Apply(relay.MarkRead{Profile: "net1", Party: "#go", Sequence: 2})
	require.True(t, first.TouchesWindow(key))
	w, _ := s.Window(key)
	require.Equal(t, int64(2), w.MarkedReadUntil)

	again := s.Apply(relay.MarkRead{Profile: "net1", Party: "#go", Sequence: 2})
	assert.True(t, again.Empty(), "repeated mark-read reported %+v", again)
	w, _ = s.Window(key)
	assert.Equal(t, int64(2), w.MarkedReadUntil)
}

func TestApply_Anomalies(t *testing.T) {
	s := loaded(t)

	tests := []relay.Update{
		relay.MarkRead{Profile: "net1", Party: "#nope", Sequence: 1},
		relay.ClearLines{Profile: "nope", Party: "", Sequence: 1},
		relay.MyNick{Profile: "nope", Nickname: "x"},
		relay.Joined{Profile: "nope", Channel: "#x"},
		relay.Names{Profile: "net1", Channel: "#nope"},
	}
	for _, u := range tests {
		t.Run(string(u.Op()), func(t *testing.T) {
			cs := s.Apply(u)
			require.Len(t, cs.Anomalies, 1)
			var target *UnknownTargetError
			assert.True(t, errors.As(cs.Anomalies[0], &target), "anomaly %v", cs.Anomalies[0])
		})
	}

	cs := s.Apply(relay.Unknown{Tag: "BOGUS", Err: relay.ErrUnknownOp})
	require.Len(t, cs.Anomalies, 1)
	assert.ErrorIs(t, cs.Anomalies[0], relay.ErrUnknownOp)

	var empty Store
	cs = empty.Apply(relay.Connected{Profile: "x"})
	require.Len(t, cs.Anomalies, 1)
	assert.ErrorIs(t, cs.Anomalies[0], ErrNotLoaded)
}

// TestApply_WindowInvariants drives random update sequences and checks that
// the key list stays sorted and every window stays within its line cap.
func TestApply_WindowInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 8).Draw(t, "limit")
		s := NewStore(limit)
		if _, err := s.LoadSnapshot(&relay.StateResponse{FlagsConstants: testFlags}); err != nil {
			t.Fatalf("load: %v", err)
		}

		parties := []string{"", "#a", "#b", "bob"}
		seq := int64(0)
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			party := rapid.SampledFrom(parties).Draw(t, "party")
			profile := rapid.SampledFrom([]string{"n1", "n2"}).Draw(t, "profile")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0, 1:
				seq++
				delta := rapid.Int64Range(0, 100).Draw(t, "delta")
				s.Apply(relay.Append{Profile: profile, Party: party, Line: line(seq, flagPrivmsg, delta, "x", "y")})
			case 2:
				s.Apply(relay.CloseWin{Profile: profile, Party: party})
			case 3:
				s.Apply(relay.OpenWin{Profile: profile, Party: party})
			}
		}

		keys := s.WindowKeys()
		for i := 1; i < len(keys); i++ {
			if keys[i-1].Compare(keys[i]) >= 0 {
				t.Fatalf("keys not strictly sorted: %v", keys)
			}
		}
		for _, k := range keys {
			w, ok := s.Window(k)
			if !ok {
				t.Fatalf("key %v listed without a window", k)
			}
			if len(w.Lines) > limit {
				t.Fatalf("window %v holds %d lines, limit %d", k, len(w.Lines), limit)
			}
			for j := 1; j < len(w.Lines); j++ {
				if w.Lines[j].Timestamp < w.Lines[j-1].Timestamp {
					t.Fatalf("timestamps decrease in %v", k)
				}
			}
		}
		if active, ok := s.Active(); ok {
			if _, exists := s.Window(active); !exists {
				t.Fatalf("active window %v does not exist", active)
			}
		}
	})
}

// TestApply_ClearLinesKeepsTail checks that clearing below a threshold drops
// exactly the older lines and keeps the rest in order.
func TestApply_ClearLinesKeepsTail(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "lines")
		lines := make([]relay.Line, 0, n)
		seq := rapid.Int64Range(0, 50).Draw(t, "first")
		for i := 0; i < n; i++ {
			seq += rapid.Int64Range(1, 5).Draw(t, "gap")
			lines = append(lines, line(seq, flagPrivmsg, 1, "a", fmt.Sprint(i)))
		}

		s := NewStore(0)
		_, err := s.LoadSnapshot(&relay.StateResponse{
			FlagsConstants: testFlags,
			Windows:        []relay.WindowState{{Profile: "n", Party: "#c", Lines: lines}},
		})
		if err != nil {
			t.Fatalf("load: %v", err)
		}

		threshold := rapid.Int64Range(-10, seq+10).Draw(t, "threshold")
		var want []int64
		for _, l := range lines {
			if l.Sequence >= threshold {
				want = append(want, l.Sequence)
			}
		}

		s.Apply(relay.ClearLines{Profile: "n", Party: "#c", Sequence: threshold})
		w, ok := s.Window(Key("n", "#c"))
		if !ok {
			t.Fatalf("window vanished")
		}
		var got []int64
		for _, l := range w.Lines {
			got = append(got, l.Sequence)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("after clear below %d: sequences %v, want %v", threshold, got, want)
		}
	})
}

// TestApplyBatch_CursorOnlyForward checks that a batch is applied at most once.
func TestApplyBatch_CursorOnlyForward(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(0)
		start := rapid.Int64Range(0, 1000).Draw(t, "start")
		if _, err := s.LoadSnapshot(&relay.StateResponse{NextUpdateID: start, FlagsConstants: testFlags}); err != nil {
			t.Fatalf("load: %v", err)
		}
		cursor := start
		n := rapid.IntRange(1, 10).Draw(t, "batches")
		for i := 0; i < n; i++ {
			size := rapid.IntRange(0, 3).Draw(t, "size")
			batch := relay.UpdateBatch{NextUpdateID: cursor + int64(size)}
			for j := 0; j < size; j++ {
				batch.Updates = append(batch.Updates, relay.Append{
					Profile: "n", Party: fmt.Sprintf("#%d", j),
					Line: line(cursor+int64(j), flagPrivmsg, 1, "a", "b"),
				})
			}
			if _, err := s.ApplyBatch(cursor, batch); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if size > 0 {
				if _, err := s.ApplyBatch(cursor, batch); !errors.Is(err, ErrStaleBatch) {
					t.Fatalf("replay error = %v, want ErrStaleBatch", err)
				}
			}
			cursor = batch.NextUpdateID
			if s.Cursor() != cursor {
				t.Fatalf("cursor = %d, want %d", s.Cursor(), cursor)
			}
		}
	})
}
