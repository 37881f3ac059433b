package state

// Kind is the message subtype encoded in a line's flags.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnecting
	KindConnected
	KindDisconnected
	KindInitTopic
	KindInitNoTopic
	KindJoin
	KindKick
	KindMode
	KindNames
	KindNick
	KindNotice
	KindPart
	KindPrivmsg
	KindQuit
	KindServerReply
	KindTopic
)

var kindNames = map[string]Kind{
	"CONNECTING":   KindConnecting,
	"CONNECTED":    KindConnected,
	"DISCONNECTED": KindDisconnected,
	"INITTOPIC":    KindInitTopic,
	"INITNOTOPIC":  KindInitNoTopic,
	"JOIN":         KindJoin,
	"KICK":         KindKick,
	"MODE":         KindMode,
	"NAMES":        KindNames,
	"NICK":         KindNick,
	"NOTICE":       KindNotice,
	"PART":         KindPart,
	"PRIVMSG":      KindPrivmsg,
	"QUIT":         KindQuit,
	"SERVERREPLY":  KindServerReply,
	"TOPIC":        KindTopic,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "UNKNOWN"
}

// ParseKind maps a subtype name to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindNames[name]
	return k, ok
}

// FlagTable interprets line flags using the constant table the relay sends
// with every snapshot. The zero value knows no constants; lines are then
// classified by their leading payload field.
type FlagTable struct {
	typeMask int
	outgoing int
	nickflag int
	kinds    map[int]Kind
}

// ParseFlagTable builds a FlagTable from the snapshot's flagsConstants map.
// Names it does not recognize are ignored.
func ParseFlagTable(constants map[string]int) FlagTable {
	t := FlagTable{kinds: make(map[int]Kind)}
	for name, value := range constants {
		switch name {
		case "TYPE_MASK":
			t.typeMask = value
		case "OUTGOING":
			t.outgoing = value
		case "NICKFLAG":
			t.nickflag = value
		default:
			if k, ok := kindNames[name]; ok {
				t.kinds[value] = k
			}
		}
	}
	return t
}

// Kind returns the subtype stored in flags, or KindUnknown.
func (t FlagTable) Kind(flags int) Kind {
	if t.typeMask == 0 {
		return KindUnknown
	}
	return t.kinds[flags&t.typeMask]
}

// Outgoing reports whether the line was sent by this client's own nickname.
func (t FlagTable) Outgoing(flags int) bool {
	return t.outgoing != 0 && flags&t.outgoing != 0
}

// Nickflag reports whether the line mentions this client's nickname.
func (t FlagTable) Nickflag(flags int) bool {
	return t.nickflag != 0 && flags&t.nickflag != 0
}

// Classify returns the line's subtype and its arguments. When the flags do
// not name a subtype, a leading payload field that does ("PRIVMSG", "JOIN")
// is used and stripped from the arguments.
func (t FlagTable) Classify(line Line) (Kind, []string) {
	if k := t.Kind(line.Flags); k != KindUnknown {
		return k, line.Payload
	}
	if len(line.Payload) > 0 {
		if k, ok := kindNames[line.Payload[0]]; ok {
			return k, line.Payload[1:]
		}
	}
	return KindUnknown, line.Payload
}
