package ui

import (
	"strings"
	"time"

	"github.com/five82/tether/internal/state"
)

// formatDate renders a relay timestamp (Unix seconds). The full form
// carries the day of month and weekday so scrollback spanning days stays
// readable; compact mode keeps only hours and minutes.
func formatDate(ts int64, compact bool, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t := time.Unix(ts, 0).In(loc)
	if compact {
		return t.Format("15:04")
	}
	return t.Format("02-Mon 15:04:05")
}

// lineView is a line reduced to the columns the message pane draws.
type lineView struct {
	who    string
	text   string
	kind   state.Kind
	action bool
}

// describeLine turns a stored line into its displayed sender and text.
func describeLine(flags state.FlagTable, line state.Line) lineView {
	kind, args := flags.Classify(line)
	arg := func(i int) string {
		if i < len(args) {
			return sanitize(args[i])
		}
		return ""
	}
	v := lineView{who: "*", kind: kind}

	switch kind {
	case state.KindPrivmsg:
		v.who = arg(0)
		text := ""
		if len(args) > 1 {
			text = args[1]
		}
		if inner, ok := ctcpAction(text); ok {
			v.who = "*"
			v.text = arg(0) + " " + sanitize(inner)
			v.action = true
		} else {
			v.text = sanitize(text)
		}
	case state.KindNotice:
		v.who = "(" + arg(0) + ")"
		v.text = arg(1)
	case state.KindNick:
		v.text = arg(0) + " changed their name to " + arg(1)
	case state.KindJoin:
		v.text = arg(0) + " joined the channel"
	case state.KindPart:
		v.text = arg(0) + " left the channel"
	case state.KindQuit:
		v.text = arg(0) + " has quit: " + arg(1)
	case state.KindKick:
		v.text = arg(1) + " kicked " + arg(0) + ": " + arg(2)
	case state.KindTopic:
		v.text = arg(0) + " set the channel topic to: " + arg(1)
	case state.KindInitTopic:
		v.text = "The channel topic is: " + arg(0)
	case state.KindInitNoTopic:
		v.text = "No channel topic is set"
	case state.KindMode:
		v.text = arg(0) + " set mode " + joinArgs(args, 1)
	case state.KindNames:
		v.text = "Users in channel: " + joinArgs(args, 0)
	case state.KindServerReply:
		if len(args) > 1 {
			v.text = joinArgs(args, 1)
		} else {
			v.text = joinArgs(args, 0)
		}
	case state.KindConnecting:
		v.text = "Connecting to server " + joinArgs(args, 0)
	case state.KindConnected:
		v.text = "Connected to server " + joinArgs(args, 0)
	case state.KindDisconnected:
		v.text = "Disconnected from server"
	default:
		v.who = "RAW"
		v.text = joinArgs(line.Payload, 0)
	}
	v.text = strings.TrimSpace(v.text)
	return v
}

func ctcpAction(text string) (string, bool) {
	const prefix, suffix = "\x01ACTION ", "\x01"
	if strings.HasPrefix(text, prefix) && strings.HasSuffix(text, suffix) && len(text) >= len(prefix)+len(suffix) {
		return text[len(prefix) : len(text)-len(suffix)], true
	}
	return "", false
}

func joinArgs(args []string, from int) string {
	if from >= len(args) {
		return ""
	}
	return sanitize(strings.Join(args[from:], " "))
}
