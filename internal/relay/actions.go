package relay

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Action is one tuple of a do-actions.json payload.
type Action struct {
	Name string
	Args []any
}

// SendLine sends a raw IRC line (for example "PRIVMSG #go :hi") on a profile's connection.
func SendLine(profile, line string) Action {
	return Action{Name: "send-line", Args: []any{profile, line}}
}

// OpenWindow asks the relay to open (profile, party).
func OpenWindow(profile, party string) Action {
	return Action{Name: "open-window", Args: []any{profile, party}}
}

// CloseWindow asks the relay to close (profile, party).
func CloseWindow(profile, party string) Action {
	return Action{Name: "close-window", Args: []any{profile, party}}
}

// MarkReadAction moves the read marker of (profile, party) to seq.
func MarkReadAction(profile, party string, seq int64) Action {
	return Action{Name: "mark-read", Args: []any{profile, party, seq}}
}

// ClearLinesAction drops lines of (profile, party) below seq.
func ClearLinesAction(profile, party string, seq int64) Action {
	return Action{Name: "clear-lines", Args: []any{profile, party, seq}}
}

// SetInitialWindow records the window a fresh client should start on.
func SetInitialWindow(profile, party string) Action {
	return Action{Name: "set-initial-window", Args: []any{profile, party}}
}

// MarshalJSON encodes the action as [name, args...].
func (a Action) MarshalJSON() ([]byte, error) {
	tuple := make([]any, 0, len(a.Args)+1)
	tuple = append(tuple, a.Name)
	tuple = append(tuple, a.Args...)
	return json.Marshal(tuple)
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	for _, arg := range a.Args {
		b.WriteByte(' ')
		switch v := arg.(type) {
		case string:
			b.WriteString(strconv.Quote(v))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		default:
			raw, _ := json.Marshal(v)
			b.Write(raw)
		}
	}
	return b.String()
}
