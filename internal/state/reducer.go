package state

import (
	"fmt"

	"github.com/five82/tether/internal/relay"
)

// Apply applies one update and reports what changed. Problems such as an
// update naming an unknown window are returned as anomalies, never as errors.
func (s *Store) Apply(u relay.Update) ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cs ChangeSet
	if !s.loaded {
		cs.anomaly(fmt.Errorf("apply %s: %w", u.Op(), ErrNotLoaded))
		return cs
	}
	s.apply(u, &cs)
	return cs
}

// ApplyBatch applies a batch fetched with cursor from and advances the
// cursor. A batch that does not continue from the current cursor is rejected
// with ErrStaleBatch and nothing is applied.
func (s *Store) ApplyBatch(from int64, batch relay.UpdateBatch) (ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ChangeSet{}, ErrNotLoaded
	}
	if from != s.cursor || batch.NextUpdateID < from {
		return ChangeSet{}, fmt.Errorf("%w: cursor %d, batch %d..%d", ErrStaleBatch, s.cursor, from, batch.NextUpdateID)
	}

	var cs ChangeSet
	for _, u := range batch.Updates {
		s.apply(u, &cs)
	}
	s.cursor = batch.NextUpdateID
	return cs, nil
}

func (s *Store) apply(u relay.Update, cs *ChangeSet) {
	switch u := u.(type) {
	case relay.Append:
		s.appendLine(Key(u.Profile, u.Party), u.Line, cs)
	case relay.MyNick:
		conn, ok := s.connections[u.Profile]
		if !ok {
			cs.anomaly(&UnknownTargetError{Op: u.Op(), Target: u.Profile})
			return
		}
		conn.nickname = u.Nickname
		cs.addConnection(u.Profile)
	case relay.Joined:
		conn, ok := s.connections[u.Profile]
		if !ok {
			cs.anomaly(&UnknownTargetError{Op: u.Op(), Target: u.Profile})
			return
		}
		conn.channels[u.Channel] = newChannel(u.Channel)
		cs.addConnection(u.Profile)
	case relay.Parted:
		s.dropChannel(u.Op(), u.Profile, u.Channel, cs)
	case relay.Kicked:
		s.dropChannel(u.Op(), u.Profile, u.Channel, cs)
	case relay.OpenWin:
		w := s.ensureWindow(Key(u.Profile, u.Party), cs)
		s.activate(w, cs)
	case relay.CloseWin:
		s.removeWindow(Key(u.Profile, u.Party), cs)
	case relay.MarkRead:
		w, ok := s.windows[Key(u.Profile, u.Party)]
		if !ok {
			cs.anomaly(&UnknownTargetError{Op: u.Op(), Target: Key(u.Profile, u.Party).String()})
			return
		}
		if w.markedReadUntil != u.Sequence {
			w.markedReadUntil = u.Sequence
			cs.addWindow(w.key)
		}
	case relay.ClearLines:
		w, ok := s.windows[Key(u.Profile, u.Party)]
		if !ok {
			cs.anomaly(&UnknownTargetError{Op: u.Op(), Target: Key(u.Profile, u.Party).String()})
			return
		}
		if w.clearBelow(u.Sequence) > 0 {
			cs.addWindow(w.key)
		}
	case relay.Connected:
		if s.connections == nil {
			s.connections = make(map[string]*connection)
		}
		s.connections[u.Profile] = newConnection(u.Profile)
		cs.addConnection(u.Profile)
	case relay.Disconnected:
		if u.Party == "" {
			if _, ok := s.connections[u.Profile]; ok {
				delete(s.connections, u.Profile)
				cs.addConnection(u.Profile)
			}
			return
		}
		if u.Line != nil {
			s.appendLine(Key(u.Profile, u.Party), *u.Line, cs)
		}
	case relay.Names:
		ch, ok := s.channel(u.Profile, u.Channel)
		if !ok {
			cs.anomaly(&UnknownTargetError{Op: u.Op(), Target: u.Profile + "/" + u.Channel})
			return
		}
		ch.setMembers(u.Members)
		cs.addConnection(u.Profile)
	case relay.Unknown:
		cs.anomaly(fmt.Errorf("skip %s update: %w", u.Tag, u.Err))
	default:
		cs.anomaly(fmt.Errorf("skip %T update: %w", u, relay.ErrUnknownOp))
	}
}

func (s *Store) channel(profile, name string) (*channel, bool) {
	conn, ok := s.connections[profile]
	if !ok {
		return nil, false
	}
	ch, ok := conn.channels[name]
	return ch, ok
}

func (s *Store) dropChannel(op relay.Op, profile, name string, cs *ChangeSet) {
	conn, ok := s.connections[profile]
	if !ok {
		cs.anomaly(&UnknownTargetError{Op: op, Target: profile})
		return
	}
	delete(conn.channels, name)
	cs.addConnection(profile)
}

func (s *Store) appendLine(key WindowKey, rl relay.Line, cs *ChangeSet) {
	w := s.ensureWindow(key, cs)
	w.decodeBase += rl.TimeDelta
	line := Line{
		Sequence:  rl.Sequence,
		Flags:     rl.Flags,
		Timestamp: w.decodeBase,
		Payload:   rl.Payload,
	}
	w.lines = append(w.lines, line)
	w.truncate(s.lineCap())
	cs.addWindow(key)

	kind, args := s.flags.Classify(line)
	s.trackMembership(key, kind, args, cs)
	s.countUnread(w, line, kind, args, cs)
}

// trackMembership keeps a channel's member list and topic in step with the
// lines logged to its window.
func (s *Store) trackMembership(key WindowKey, kind Kind, args []string, cs *ChangeSet) {
	ch, ok := s.channel(key.Profile, key.Party)
	if !ok {
		return
	}
	arg := func(i int) (string, bool) {
		if i < len(args) {
			return args[i], true
		}
		return "", false
	}

	switch kind {
	case KindJoin:
		nick, ok := arg(0)
		if !ok {
			return
		}
		ch.members[nick] = struct{}{}
	case KindPart, KindQuit, KindKick:
		// the departing nick leads the payload; KICK continues with kicker and reason
		nick, ok := arg(0)
		if !ok {
			return
		}
		delete(ch.members, nick)
	case KindNick:
		from, ok1 := arg(0)
		to, ok2 := arg(1)
		if !ok1 || !ok2 {
			return
		}
		if _, present := ch.members[from]; !present {
			return
		}
		delete(ch.members, from)
		ch.members[to] = struct{}{}
	case KindTopic:
		topic, ok := arg(1)
		if !ok {
			return
		}
		ch.topic = &topic
	case KindInitTopic:
		topic, ok := arg(0)
		if !ok {
			return
		}
		ch.topic = &topic
	case KindInitNoTopic:
		ch.topic = nil
	default:
		return
	}
	cs.addConnection(key.Profile)
}

func (s *Store) countUnread(w *window, line Line, kind Kind, args []string, cs *ChangeSet) {
	if kind != KindPrivmsg && kind != KindNotice {
		return
	}
	active := s.isActive(w.key)
	if active && s.flags.Outgoing(line.Flags) {
		w.resetCounters()
		return
	}
	if w.isMuted {
		return
	}
	w.numNewMessages++
	if s.flags.Nickflag(line.Flags) {
		w.isNickflagged = true
		if !active {
			cs.Highlights = append(cs.Highlights, Highlight{Key: w.key, Line: line, Args: args})
		}
	}
}
