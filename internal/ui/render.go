package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tether/internal/state"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderBody())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	return b.String()
}

func (m Model) renderBody() string {
	switch m.view {
	case ViewFailures:
		return m.renderFailures()
	case ViewLogs:
		return m.logViewport.View()
	}
	if m.listWidth() == 0 {
		return m.messages.View()
	}
	sep := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Border)).
		Render(strings.TrimSuffix(strings.Repeat("│\n", m.bodyHeight()), "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderWindowList(), sep, m.messages.View())
}

// renderHeader renders the one-line status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	st := m.status

	parts := []string{
		bg.Render("tether", styles.Logo),
		styles.PhaseStyle(st.Phase).Render(st.Phase),
	}
	if m.hasActive {
		parts = append(parts, bg.Render(windowLabel(m.active), styles.AccentText))
	}
	if m.nickname != "" {
		parts = append(parts, bg.Render("as", styles.MutedText)+bg.Spaces(1)+bg.Render(m.nickname, styles.Text))
	}

	unread, mentioned := 0, false
	for _, w := range m.windows {
		unread += w.NumNewMessages
		mentioned = mentioned || w.IsNickflagged
	}
	if unread > 0 {
		parts = append(parts, bg.Render("Unread:", styles.MutedText)+bg.Spaces(1)+bg.Render(fmt.Sprintf("%d", unread), styles.Text))
	}
	if mentioned {
		parts = append(parts, bg.Render("● mention", styles.DangerText))
	}
	if st.Offline {
		parts = append(parts, bg.Render("OFFLINE", styles.DangerText))
	}
	if st.RetryIn > 0 {
		parts = append(parts, bg.Render("retry in "+st.RetryIn.Round(time.Second).String(), styles.WarningText))
	}
	if st.LastError != nil && (st.Phase == "failed" || st.Offline) {
		parts = append(parts, bg.Render(truncate(st.LastError.Error(), 60), styles.DangerText))
	}
	if st.SkewWarning {
		parts = append(parts, bg.Render("clock skew "+st.ClockSkew.Round(time.Second).String(), styles.WarningText))
	}
	if n := len(m.failures); n > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("%d failed", n), styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// renderWindowList renders the window column, scrolled so the active
// window stays visible.
func (m Model) renderWindowList() string {
	width, height := m.listWidth(), m.bodyHeight()
	styles := m.theme.Styles().WithBackground(m.theme.Surface)

	type row struct {
		text  string
		style lipgloss.Style
	}
	var rows []row
	activeRow := -1
	lastProfile := ""
	for _, w := range m.windows {
		if w.Key.Profile != lastProfile && !w.Key.IsServer() {
			rows = append(rows, row{text: w.Key.Profile, style: styles.MutedText})
		}
		lastProfile = w.Key.Profile

		label := "  " + w.Key.Party
		if w.Key.IsServer() {
			label = w.Key.Profile
		}
		suffix := ""
		switch {
		case w.IsMuted:
			suffix = " ~"
		case w.NumNewMessages > 0:
			suffix = fmt.Sprintf(" %d", w.NumNewMessages)
		}
		text := padRight(truncate(label, width-len(suffix)-1)+suffix, width)

		style := styles.Text
		switch {
		case m.hasActive && w.Key == m.active:
			style = styles.Selected
			activeRow = len(rows)
		case w.IsMuted:
			style = styles.FaintText
		case w.IsNickflagged:
			style = styles.DangerText
		case w.NumNewMessages > 0:
			style = styles.WarningText
		}
		rows = append(rows, row{text: text, style: style})
	}

	start := 0
	if activeRow >= height {
		start = activeRow - height + 1
	}
	var out []string
	for i := start; i < len(rows) && len(out) < height; i++ {
		out = append(out, rows[i].style.Render(padRight(rows[i].text, width)))
	}
	if len(out) == 0 {
		out = append(out, styles.MutedText.Render(padRight("no windows", width)))
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Width(width).
		Height(height).
		Render(strings.Join(out, "\n"))
}

// renderLines builds the message pane content for the active window.
func (m Model) renderLines() string {
	styles := m.theme.Styles()
	if m.store == nil || !m.hasActive {
		return styles.MutedText.Render("No window selected. Waiting for the relay...")
	}
	w, ok := m.store.Window(m.active)
	if !ok {
		return ""
	}
	flags := m.store.Flags()
	width := maxInt(m.messageWidth(), 10)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	if topic := m.topicLine(); topic != "" {
		b.WriteString(wrap.Render(styles.InfoText.Render(topic)))
	}
	for i, line := range w.Lines {
		if i > 0 || b.Len() > 0 {
			b.WriteString("\n")
		}
		v := describeLine(flags, line)

		whoStyle := styles.AccentText
		switch {
		case flags.Outgoing(line.Flags):
			whoStyle = styles.SuccessText
		case flags.Nickflag(line.Flags):
			whoStyle = styles.DangerText
		case v.who == "*":
			whoStyle = styles.FaintText
		}
		textStyle := styles.Text
		if w.IsRead(line) {
			textStyle = styles.MutedText
		}
		if v.action {
			textStyle = textStyle.Italic(true)
		}

		row := styles.FaintText.Render(formatDate(line.Timestamp, m.prefs.Compact, m.loc)) + " " +
			whoStyle.Render(padRight(truncate(v.who, senderWidth), senderWidth)) + " " +
			textStyle.Render(v.text)
		b.WriteString(wrap.Render(row))
	}
	if len(w.Lines) == 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.MutedText.Render("No messages"))
	}
	return b.String()
}

// topicLine describes the active channel's topic and member count.
func (m Model) topicLine() string {
	if !m.hasActive || m.active.IsServer() {
		return ""
	}
	conn, ok := m.store.Connection(m.active.Profile)
	if !ok {
		return ""
	}
	ch, ok := conn.Channels[m.active.Party]
	if !ok {
		return ""
	}
	topic := "no topic"
	if ch.Topic != nil {
		topic = sanitize(*ch.Topic)
	}
	return fmt.Sprintf("%s (%d members)", topic, len(ch.Members))
}

// refreshMessages re-renders the message pane, keeping the scroll position
// unless the pane was at the bottom or gotoBottom is set.
func (m *Model) refreshMessages(gotoBottom bool) {
	if !m.ready {
		return
	}
	atBottom := m.messages.AtBottom()
	m.messages.SetContent(m.renderLines())
	if gotoBottom || atBottom {
		m.messages.GotoBottom()
	}
}

func (m Model) renderFailures() string {
	styles := m.theme.Styles()
	height := m.bodyHeight()

	var lines []string
	lines = append(lines, styles.Text.Bold(true).Render("Failed actions")+"  "+
		styles.MutedText.Render("x dismisses the newest, f or esc returns"))
	if len(m.failures) == 0 {
		lines = append(lines, styles.MutedText.Render("No failed actions"))
	}
	for i := len(m.failures) - 1; i >= 0 && len(lines) < height; i-- {
		f := m.failures[i]
		lines = append(lines,
			styles.FaintText.Render(f.At.In(m.loc).Format("15:04:05"))+" "+
				styles.DangerText.Render(truncate(f.Summary, maxInt(m.width-10, 10))))
	}
	return lipgloss.NewStyle().Width(m.width).Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatusLine() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if m.notice != "" {
		return styles.Footer.Width(m.width).Render(bg.Render(m.notice, styles.WarningText))
	}

	var hints []string
	if m.mode == modeInsert {
		hints = []string{
			bg.Render("INSERT", styles.AccentText.Bold(true)),
			bg.Render("enter", styles.WarningText) + bg.Spaces(1) + bg.Render("send", styles.MutedText),
			bg.Render("esc", styles.WarningText) + bg.Spaces(1) + bg.Render("cancel", styles.MutedText),
		}
	} else {
		for _, k := range m.keys.ShortHelp() {
			h := k.Help()
			hints = append(hints, bg.Render(h.Key, styles.WarningText)+bg.Spaces(1)+bg.Render(h.Desc, styles.MutedText))
		}
		if m.view == ViewLogs {
			hints = append(hints, bg.Render("v", styles.WarningText)+bg.Spaces(1)+
				bg.Render("level "+m.logLevel.String(), styles.MutedText))
		}
	}
	if m.prefs.Compact {
		hints = append(hints, bg.Render("compact", styles.FaintText))
	}
	return styles.Footer.Width(m.width).Render(bg.Join(hints, "  "))
}

func (m Model) renderInput() string {
	style := lipgloss.NewStyle().Width(m.width)
	if m.mode == modeInsert {
		style = style.Background(lipgloss.Color(m.theme.FocusBg))
	}
	return style.Render(m.input.View())
}

// windowLabel is the display name of a window key.
func windowLabel(k state.WindowKey) string {
	if k.IsServer() {
		return k.Profile + " (server)"
	}
	return k.String()
}
