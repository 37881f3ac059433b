package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/five82/tether/internal/relay"
	"github.com/five82/tether/internal/state"
)

var (
	errNoWindow     = errors.New("no window selected")
	errServerWindow = errors.New("cannot send messages to a server window")
	errNotChannel   = errors.New("not in a channel window")
)

// inputContext is what the input grammar needs to know about the client.
type inputContext struct {
	active    state.WindowKey
	hasActive bool
	// nextSeq is one past the newest line of the active window.
	nextSeq int64
	exists  func(state.WindowKey) bool
}

// command is the outcome of one submitted input line.
type command struct {
	actions []relay.Action
	// focus names a window to switch to, now or once the relay opens it.
	focus *state.WindowKey
}

// parseInput turns an input box line into relay actions.
//
// Plain text goes to the active window. A leading "//" sends the rest with a
// single leading slash. Other lines starting with "/" are commands.
func parseInput(text string, ic inputContext) (command, error) {
	if strings.TrimSpace(text) == "" {
		return command{}, nil
	}
	if !ic.hasActive {
		return command{}, errNoWindow
	}
	profile := ic.active.Profile

	if strings.HasPrefix(text, "//") {
		return sayTo(ic, text[1:])
	}
	if !strings.HasPrefix(text, "/") {
		return sayTo(ic, text)
	}

	name, rest, _ := strings.Cut(text[1:], " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	switch name {
	case "me":
		if rest == "" {
			return command{}, usage("/me <action>")
		}
		return sayTo(ic, "\x01ACTION "+rest+"\x01")

	case "msg":
		target, msg, ok := strings.Cut(rest, " ")
		if !ok || target == "" || strings.TrimSpace(msg) == "" {
			return command{}, usage("/msg <target> <text>")
		}
		key := state.Key(profile, target)
		var cmd command
		if !ic.exists(key) {
			cmd.actions = append(cmd.actions, relay.OpenWindow(profile, target))
		}
		cmd.actions = append(cmd.actions, relay.SendLine(profile, privmsg(target, msg)))
		cmd.focus = &key
		return cmd, nil

	case "query":
		if rest == "" || strings.Contains(rest, " ") {
			return command{}, usage("/query <nick>")
		}
		key := state.Key(profile, rest)
		cmd := command{focus: &key}
		if !ic.exists(key) {
			cmd.actions = []relay.Action{relay.OpenWindow(profile, rest)}
		}
		return cmd, nil

	case "join":
		if rest == "" {
			return command{}, usage("/join <channel> [key]")
		}
		return send(profile, "JOIN "+rest), nil

	case "part":
		channel, reason := rest, ""
		if rest == "" || !isChannel(strings.Fields(rest)[0]) {
			if !isChannel(ic.active.Party) {
				return command{}, errNotChannel
			}
			channel, reason = ic.active.Party, rest
		} else if c, r, ok := strings.Cut(rest, " "); ok {
			channel, reason = c, strings.TrimSpace(r)
		}
		if reason != "" {
			return send(profile, "PART "+channel+" :"+reason), nil
		}
		return send(profile, "PART "+channel), nil

	case "nick":
		if rest == "" || strings.Contains(rest, " ") {
			return command{}, usage("/nick <nickname>")
		}
		return send(profile, "NICK "+rest), nil

	case "topic":
		if !isChannel(ic.active.Party) {
			return command{}, errNotChannel
		}
		if rest == "" {
			return send(profile, "TOPIC "+ic.active.Party), nil
		}
		return send(profile, "TOPIC "+ic.active.Party+" :"+rest), nil

	case "raw", "quote":
		if rest == "" {
			return command{}, usage("/raw <line>")
		}
		return send(profile, rest), nil

	case "close":
		return command{actions: []relay.Action{relay.CloseWindow(profile, ic.active.Party)}}, nil

	case "markread":
		return command{actions: []relay.Action{relay.MarkReadAction(profile, ic.active.Party, ic.nextSeq)}}, nil

	case "clear":
		return command{actions: []relay.Action{relay.ClearLinesAction(profile, ic.active.Party, ic.nextSeq)}}, nil

	default:
		return command{}, fmt.Errorf("unknown command /%s", name)
	}
}

func sayTo(ic inputContext, text string) (command, error) {
	if ic.active.IsServer() {
		return command{}, errServerWindow
	}
	return send(ic.active.Profile, privmsg(ic.active.Party, text)), nil
}

func send(profile, line string) command {
	return command{actions: []relay.Action{relay.SendLine(profile, line)}}
}

func privmsg(target, text string) string {
	return "PRIVMSG " + target + " :" + text
}

func isChannel(name string) bool {
	return name != "" && strings.ContainsRune("#&+!", rune(name[0]))
}

func usage(form string) error {
	return fmt.Errorf("usage: %s", form)
}
