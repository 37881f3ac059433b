package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op is the tag in the first field of an update tuple.
type Op string

const (
	OpAppend       Op = "APPEND"
	OpMyNick       Op = "MYNICK"
	OpJoined       Op = "JOINED"
	OpParted       Op = "PARTED"
	OpKicked       Op = "KICKED"
	OpOpenWin      Op = "OPENWIN"
	OpCloseWin     Op = "CLOSEWIN"
	OpMarkRead     Op = "MARKREAD"
	OpClearLines   Op = "CLEARLINES"
	OpConnected    Op = "CONNECTED"
	OpDisconnected Op = "DISCONNECTED"
	OpNames        Op = "NAMES"
)

// ErrUnknownOp marks an update whose tag is outside the known vocabulary.
var ErrUnknownOp = errors.New("unknown update op")

// Update is one decoded record of an update batch. The concrete type is one
// of the variants below; Unknown carries anything that failed to decode.
type Update interface {
	Op() Op
	isUpdate()
}

// Append adds a line to the window (Profile, Party), creating it if needed.
type Append struct {
	Profile string
	Party   string
	Line    Line
}

// MyNick reports the connection's own nickname.
type MyNick struct {
	Profile  string
	Nickname string
}

// Joined reports that the connection joined Channel.
type Joined struct {
	Profile string
	Channel string
}

// Parted reports that the connection left Channel.
type Parted struct {
	Profile string
	Channel string
}

// Kicked reports that the connection was kicked from Channel.
type Kicked struct {
	Profile string
	Channel string
}

// OpenWin opens a window and makes it active.
type OpenWin struct {
	Profile string
	Party   string
}

// CloseWin removes a window.
type CloseWin struct {
	Profile string
	Party   string
}

// MarkRead moves a window's read marker.
type MarkRead struct {
	Profile  string
	Party    string
	Sequence int64
}

// ClearLines drops lines below Sequence.
type ClearLines struct {
	Profile  string
	Party    string
	Sequence int64
}

// Connected creates a connection entry.
type Connected struct {
	Profile string
}

// Disconnected with an empty Party removes the connection. With a party it
// carries an informational line for that window.
type Disconnected struct {
	Profile string
	Party   string
	Line    *Line
}

// Names replaces a channel's member list.
type Names struct {
	Profile string
	Channel string
	Members []string
}

// Unknown is an update that could not be decoded.
type Unknown struct {
	Tag Op
	Raw json.RawMessage
	Err error
}

func (Append) Op() Op       { return OpAppend }
func (MyNick) Op() Op       { return OpMyNick }
func (Joined) Op() Op       { return OpJoined }
func (Parted) Op() Op       { return OpParted }
func (Kicked) Op() Op       { return OpKicked }
func (OpenWin) Op() Op      { return OpOpenWin }
func (CloseWin) Op() Op     { return OpCloseWin }
func (MarkRead) Op() Op     { return OpMarkRead }
func (ClearLines) Op() Op   { return OpClearLines }
func (Connected) Op() Op    { return OpConnected }
func (Disconnected) Op() Op { return OpDisconnected }
func (Names) Op() Op        { return OpNames }
func (u Unknown) Op() Op    { return u.Tag }

func (Append) isUpdate()       {}
func (MyNick) isUpdate()       {}
func (Joined) isUpdate()       {}
func (Parted) isUpdate()       {}
func (Kicked) isUpdate()       {}
func (OpenWin) isUpdate()      {}
func (CloseWin) isUpdate()     {}
func (MarkRead) isUpdate()     {}
func (ClearLines) isUpdate()   {}
func (Connected) isUpdate()    {}
func (Disconnected) isUpdate() {}
func (Names) isUpdate()        {}
func (Unknown) isUpdate()      {}

// UpdateBatch mirrors a non-null get-updates.json response.
type UpdateBatch struct {
	NextUpdateID int64
	Updates      []Update
}

// UnmarshalJSON decodes the batch, turning each tuple into a typed Update.
// A malformed tuple becomes Unknown instead of failing the whole batch.
func (b *UpdateBatch) UnmarshalJSON(data []byte) error {
	var raw struct {
		NextUpdateID *int64            `json:"nextUpdateId"`
		Updates      []json.RawMessage `json:"updates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode update batch: %w", err)
	}
	if raw.NextUpdateID == nil {
		return fmt.Errorf("decode update batch: missing nextUpdateId")
	}
	b.NextUpdateID = *raw.NextUpdateID
	b.Updates = make([]Update, 0, len(raw.Updates))
	for _, item := range raw.Updates {
		b.Updates = append(b.Updates, DecodeUpdate(item))
	}
	return nil
}

// DecodeUpdate turns one update tuple into its typed variant.
func DecodeUpdate(raw json.RawMessage) Update {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Unknown{Raw: raw, Err: fmt.Errorf("decode update: %w", err)}
	}
	if len(fields) == 0 {
		return Unknown{Raw: raw, Err: fmt.Errorf("decode update: empty tuple")}
	}
	tag, err := decodeString(fields[0], "update op")
	if err != nil {
		return Unknown{Raw: raw, Err: err}
	}
	op := Op(tag)
	u, err := decodeFields(op, fields[1:])
	if err != nil {
		return Unknown{Tag: op, Raw: raw, Err: fmt.Errorf("decode %s: %w", op, err)}
	}
	return u
}

func decodeFields(op Op, f []json.RawMessage) (Update, error) {
	switch op {
	case OpAppend:
		if len(f) < 2 {
			return nil, errFieldCount(2, len(f))
		}
		profile, party, err := decodePair(f)
		if err != nil {
			return nil, err
		}
		line, err := decodeLine(f[2:])
		if err != nil {
			return nil, err
		}
		return Append{Profile: profile, Party: party, Line: line}, nil

	case OpMyNick, OpJoined, OpParted, OpKicked, OpOpenWin, OpCloseWin:
		if len(f) != 2 {
			return nil, errFieldCount(2, len(f))
		}
		a, b, err := decodePair(f)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpMyNick:
			return MyNick{Profile: a, Nickname: b}, nil
		case OpJoined:
			return Joined{Profile: a, Channel: b}, nil
		case OpParted:
			return Parted{Profile: a, Channel: b}, nil
		case OpKicked:
			return Kicked{Profile: a, Channel: b}, nil
		case OpOpenWin:
			return OpenWin{Profile: a, Party: b}, nil
		default:
			return CloseWin{Profile: a, Party: b}, nil
		}

	case OpMarkRead, OpClearLines:
		if len(f) != 3 {
			return nil, errFieldCount(3, len(f))
		}
		profile, party, err := decodePair(f)
		if err != nil {
			return nil, err
		}
		seq, err := decodeInt(f[2], "sequence")
		if err != nil {
			return nil, err
		}
		if op == OpMarkRead {
			return MarkRead{Profile: profile, Party: party, Sequence: seq}, nil
		}
		return ClearLines{Profile: profile, Party: party, Sequence: seq}, nil

	case OpConnected:
		if len(f) != 1 {
			return nil, errFieldCount(1, len(f))
		}
		profile, err := decodeString(f[0], "profile")
		if err != nil {
			return nil, err
		}
		return Connected{Profile: profile}, nil

	case OpDisconnected:
		if len(f) < 1 {
			return nil, errFieldCount(1, len(f))
		}
		profile, err := decodeString(f[0], "profile")
		if err != nil {
			return nil, err
		}
		d := Disconnected{Profile: profile}
		if len(f) == 1 {
			return d, nil
		}
		if d.Party, err = decodeString(f[1], "party"); err != nil {
			return nil, err
		}
		if d.Party == "" {
			return d, nil
		}
		line, err := decodeLine(f[2:])
		if err != nil {
			return nil, err
		}
		d.Line = &line
		return d, nil

	case OpNames:
		if len(f) < 2 {
			return nil, errFieldCount(2, len(f))
		}
		profile, channel, err := decodePair(f)
		if err != nil {
			return nil, err
		}
		members, err := decodeStrings(f[2:])
		if err != nil {
			return nil, err
		}
		return Names{Profile: profile, Channel: channel, Members: members}, nil
	}
	return nil, ErrUnknownOp
}

func decodePair(f []json.RawMessage) (string, string, error) {
	a, err := decodeString(f[0], "profile")
	if err != nil {
		return "", "", err
	}
	b, err := decodeString(f[1], "target")
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func errFieldCount(want, got int) error {
	return fmt.Errorf("want %d fields, got %d", want, got)
}

// PollKind discriminates the outcome of an update fetch.
type PollKind int

const (
	// PollFailed means the request did not produce a usable answer
	// (network error, timeout, HTTP error, undecodable body).
	PollFailed PollKind = iota
	// PollUpdated carries a batch, possibly empty when the long poll expired.
	PollUpdated
	// PollDesynced means the relay cannot resume from the requested cursor.
	PollDesynced
)

func (k PollKind) String() string {
	switch k {
	case PollUpdated:
		return "updated"
	case PollDesynced:
		return "desynced"
	default:
		return "failed"
	}
}

// PollResult is the outcome of one get-updates.json call.
type PollResult struct {
	Kind  PollKind
	Batch UpdateBatch
	Err   error
}
