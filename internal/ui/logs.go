package ui

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tether/internal/logtail"
)

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

var logLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// loadLogs reads the client log off the UI goroutine.
func (m Model) loadLogs() tea.Cmd {
	path, level := m.logPath, m.logLevel
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, LogTailLines, level)
		return logsMsg{entries: entries, err: err}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	if msg.err != nil {
		m.notice = "read log: " + msg.err.Error()
		return
	}
	m.logs = msg.entries
	m.refreshLogViewport()
}

// handleLogsKey processes keys for the log pane.
func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleLogLevel):
		m.logLevel = nextLogLevel(m.logLevel)
		return m, m.loadLogs()
	case key.Matches(msg, m.keys.PageUp):
		m.logViewport.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logViewport.PageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.logViewport.HalfPageUp()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.logViewport.HalfPageDown()
	case key.Matches(msg, m.keys.FirstWindow):
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.LastWindow):
		m.logViewport.GotoBottom()
	}
	return m, nil
}

func nextLogLevel(current slog.Level) slog.Level {
	for i, l := range logLevels {
		if l == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return slog.LevelInfo
}

// refreshLogViewport re-renders the log pane, following the tail while the
// view is scrolled to the bottom.
func (m *Model) refreshLogViewport() {
	if !m.ready {
		return
	}
	atBottom := m.logViewport.AtBottom() || m.logViewport.TotalLineCount() == 0
	lines := make([]string, 0, len(m.logs))
	for _, e := range m.logs {
		lines = append(lines, m.renderLogEntry(e))
	}
	if len(lines) == 0 {
		lines = append(lines, m.theme.Styles().MutedText.Render("No log entries at "+m.logLevel.String()+" or above"))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.logViewport.GotoBottom()
	}
}

// renderLogEntry colors one parsed log line.
func (m Model) renderLogEntry(e logtail.Entry) string {
	styles := m.theme.Styles()

	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(styles.FaintText.Render(e.Time.In(m.loc).Format("15:04:05")))
		b.WriteString(" ")
	}

	levelStyle := styles.SuccessText
	switch {
	case e.Level >= slog.LevelError:
		levelStyle = styles.DangerText
	case e.Level >= slog.LevelWarn:
		levelStyle = styles.WarningText.Bold(true)
	case e.Level < slog.LevelInfo:
		levelStyle = styles.InfoText
	}
	b.WriteString(levelStyle.Render(padRight(e.Level.String(), 5)))
	b.WriteString(" ")

	if c, ok := e.Attr("component"); ok {
		b.WriteString(styles.AccentText.Render("[" + c + "]"))
		b.WriteString(" ")
	}
	b.WriteString(styles.Text.Render(e.Message))

	for _, a := range e.Attrs {
		if a.Key == "component" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(styles.FaintText.Render(a.Key + "="))
		b.WriteString(styles.MutedText.Render(a.Value))
	}
	return b.String()
}
