package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the width below which the window list is hidden.
	LayoutCompactWidth = 80

	// WindowListWidth is the width of the window list column.
	WindowListWidth = 26

	// senderWidth is the width of the sender column in the message pane.
	senderWidth = 14
)

// Limits.
const (
	// InputCharLimit caps one input line. IRC lines top out at 512 bytes.
	InputCharLimit = 400

	// LogTailLines is how many lines of the client log the log pane reads.
	LogTailLines = 2000
)

// DefaultUIInterval is the default housekeeping tick.
const DefaultUIInterval = time.Second

func (m Model) listWidth() int {
	if m.width < LayoutCompactWidth {
		return 0
	}
	return WindowListWidth
}

func (m Model) messageWidth() int {
	w := m.width - m.listWidth()
	if m.listWidth() > 0 {
		w-- // separator column
	}
	return maxInt(w, 10)
}

// bodyHeight leaves room for the header, the status line and the input box.
func (m Model) bodyHeight() int {
	return maxInt(m.height-3, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
