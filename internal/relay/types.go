package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StateResponse mirrors the object returned by get-state.json.
type StateResponse struct {
	NextUpdateID   int64                      `json:"nextUpdateId"`
	CSRFToken      string                     `json:"csrfToken"`
	FlagsConstants map[string]int             `json:"flagsConstants"`
	Connections    map[string]ConnectionState `json:"connections"`
	Windows        []WindowState              `json:"windows"`
	InitialWindow  *WindowRef                 `json:"initialWindow"`
}

// ConnectionState describes one profile's live IRC session.
type ConnectionState struct {
	CurrentNickname *string                 `json:"currentNickname"`
	Channels        map[string]ChannelState `json:"channels"`
}

// ChannelState describes a joined channel.
type ChannelState struct {
	Members []string `json:"members"`
	Topic   *string  `json:"topic"`
}

// WindowRef names a window on the wire as a [profile, party] pair.
type WindowRef struct {
	Profile string
	Party   string
}

// UnmarshalJSON decodes the [profile, party] tuple form.
func (r *WindowRef) UnmarshalJSON(data []byte) error {
	var tuple []string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode window ref: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("decode window ref: want 2 fields, got %d", len(tuple))
	}
	r.Profile, r.Party = tuple[0], tuple[1]
	return nil
}

// WindowState is one entry of the snapshot's window list.
type WindowState struct {
	Profile         string
	Party           string
	Lines           []Line
	MarkedReadUntil int64
}

// UnmarshalJSON decodes the [profile, party, {lines, markedReadUntil}] tuple form.
func (w *WindowState) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode window: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("decode window: want 3 fields, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &w.Profile); err != nil {
		return fmt.Errorf("decode window profile: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &w.Party); err != nil {
		return fmt.Errorf("decode window party: %w", err)
	}
	var body struct {
		Lines           []Line `json:"lines"`
		MarkedReadUntil int64  `json:"markedReadUntil"`
	}
	if err := json.Unmarshal(tuple[2], &body); err != nil {
		return fmt.Errorf("decode window %s/%s: %w", w.Profile, w.Party, err)
	}
	w.Lines = body.Lines
	w.MarkedReadUntil = body.MarkedReadUntil
	return nil
}

// Line is a message line as transmitted. TimeDelta is relative to the previous
// line of the same window; the store turns it into an absolute timestamp.
type Line struct {
	Sequence  int64
	Flags     int
	TimeDelta int64
	Payload   []string
}

// UnmarshalJSON decodes the [seq, flags, timeDelta, payload...] tuple form.
func (l *Line) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	line, err := decodeLine(tuple)
	if err != nil {
		return err
	}
	*l = line
	return nil
}

func decodeLine(fields []json.RawMessage) (Line, error) {
	if len(fields) < 3 {
		return Line{}, fmt.Errorf("decode line: want at least 3 fields, got %d", len(fields))
	}
	seq, err := decodeInt(fields[0], "line sequence")
	if err != nil {
		return Line{}, err
	}
	flags, err := decodeInt(fields[1], "line flags")
	if err != nil {
		return Line{}, err
	}
	delta, err := decodeInt(fields[2], "line timestamp")
	if err != nil {
		return Line{}, err
	}
	line := Line{Sequence: seq, Flags: int(flags), TimeDelta: delta}
	payload, err := decodeStrings(fields[3:])
	if err != nil {
		return Line{}, fmt.Errorf("decode line payload: %w", err)
	}
	line.Payload = payload
	return line, nil
}

// decodeStrings flattens payload values to strings. The relay sends some
// payload values as numbers or booleans (ports, TLS flags); those keep their
// JSON text, and null becomes the empty string.
func decodeStrings(fields []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(fields))
	for i, raw := range fields {
		trimmed := bytes.TrimSpace(raw)
		switch {
		case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
			out = append(out, "")
		case trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			out = append(out, s)
		case trimmed[0] == '[' || trimmed[0] == '{':
			return nil, fmt.Errorf("field %d: unexpected composite value", i)
		default:
			out = append(out, string(trimmed))
		}
	}
	return out, nil
}

func decodeString(raw json.RawMessage, what string) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decode %s: %w", what, err)
	}
	return s, nil
}

func decodeInt(raw json.RawMessage, what string) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		// Some relays quote numbers inside update tuples.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("decode %s: %w", what, err)
		}
		parsed, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return 0, fmt.Errorf("decode %s: %w", what, perr)
		}
		return parsed, nil
	}
	return n, nil
}
