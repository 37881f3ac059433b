package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/beeep"

	"github.com/five82/tether/internal/state"
)

const (
	maxNotifyBody   = 100
	notifyQueueSize = 32
)

type notifyFunc func(title, message string) error

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier raises desktop notifications for highlighted lines.
type Notifier struct {
	send    notifyFunc
	logger  *slog.Logger
	enabled bool
	queue   chan state.Highlight
}

// NewNotifier returns a Notifier backed by beeep. A disabled Notifier drops
// everything.
func NewNotifier(enabled bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		send:    beeepNotify,
		logger:  logger,
		enabled: enabled,
		queue:   make(chan state.Highlight, notifyQueueSize),
	}
}

// Highlights queues one notification per highlighted line for Run to
// deliver. It never blocks; lines that find the queue full are dropped.
func (n *Notifier) Highlights(hs []state.Highlight) {
	if n == nil || !n.enabled {
		return
	}
	for _, h := range hs {
		select {
		case n.queue <- h:
		default:
			n.logger.Debug("notification queue full, dropping", "window", h.Key.String())
		}
	}
}

// Run delivers queued notifications until ctx is cancelled. Failures are
// logged and otherwise ignored.
func (n *Notifier) Run(ctx context.Context) {
	if n == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-n.queue:
			title, body := notification(h)
			if err := n.send(title, body); err != nil {
				n.logger.Debug("desktop notification failed", "window", h.Key.String(), "error", err)
			}
		}
	}
}

func notification(h state.Highlight) (string, string) {
	title := "tether - " + h.Key.String()
	args := h.Args
	if args == nil {
		args = h.Line.Payload
	}
	var body string
	switch len(args) {
	case 0:
	case 1:
		body = args[0]
	default:
		// conversational payloads are nick, text
		body = fmt.Sprintf("%s: %s", args[0], strings.Join(args[1:], " "))
	}
	return title, clip(body, maxNotifyBody)
}

// clip shortens s to at most limit bytes, cutting on a rune boundary.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > limit-3 {
			break
		}
		cut += size
	}
	return s[:cut] + "..."
}
