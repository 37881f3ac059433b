package ui

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tether/internal/logtail"
	"github.com/five82/tether/internal/prefs"
	"github.com/five82/tether/internal/relay"
	"github.com/five82/tether/internal/state"
)

// View represents the current main pane.
type View int

const (
	ViewMessages View = iota
	ViewFailures
	ViewLogs
)

type inputMode int

const (
	modeNormal inputMode = iota
	modeInsert
)

// SyncStatus is the sync loop state shown in the header.
type SyncStatus struct {
	Phase               string
	LastError           error
	ConsecutiveFailures int
	RetryIn             time.Duration
	Offline             bool
	ClockSkew           time.Duration
	SkewWarning         bool
	Cursor              int64
}

// Failure is an action submission the relay did not accept.
type Failure struct {
	ID      string
	Summary string
	At      time.Time
}

// Backend is the sync machinery the UI drives.
type Backend interface {
	// Submit sends actions and calls done with the outcome from another goroutine.
	Submit(actions []relay.Action, done func(error))
	Retry()
	Resync()
	Failures() []Failure
	DismissLatest() bool
}

// Options configures the UI.
type Options struct {
	Store     *state.Store
	Backend   Backend
	Prefs     prefs.Prefs
	PrefsPath string
	LogPath   string
	Location  *time.Location
	Tick      time.Duration
}

// ChangesMsg tells the UI which parts of the Store changed.
type ChangesMsg state.ChangeSet

// StatusMsg carries a new sync status.
type StatusMsg SyncStatus

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	store     *state.Store
	backend   Backend
	keys      keyMap
	prefs     prefs.Prefs
	prefsPath string
	logPath   string
	loc       *time.Location
	tick      time.Duration

	// UI state
	theme    Theme
	view     View
	mode     inputMode
	width    int
	height   int
	ready    bool
	showHelp bool
	notice   string

	// Store view
	windows   []state.WindowSummary
	active    state.WindowKey
	hasActive bool
	nickname  string
	// pendingFocus is a window to select once the relay has opened it.
	pendingFocus *state.WindowKey

	// Sync view
	status   SyncStatus
	failures []Failure

	// Panes
	messages viewport.Model
	input    textinput.Model

	logs        []logtail.Entry
	logLevel    slog.Level
	logViewport viewport.Model
}

// New creates the UI model.
func New(opts Options) Model {
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultUIInterval
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	ti := textinput.New()
	ti.Placeholder = "Press i to type, / for commands"
	ti.CharLimit = InputCharLimit
	ti.Prompt = "> "

	return Model{
		store:     opts.Store,
		backend:   opts.Backend,
		keys:      defaultKeyMap(),
		prefs:     opts.Prefs,
		prefsPath: prefsPath,
		logPath:   opts.LogPath,
		loc:       loc,
		tick:      tick,
		theme:     GetTheme(opts.Prefs.Theme),
		view:      ViewMessages,
		input:     ti,
		logLevel:  slog.LevelInfo,
		status:    SyncStatus{Phase: "authenticating"},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(m.tick),
		func() tea.Msg { return ChangesMsg(state.ChangeSet{Reloaded: true}) },
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.messages = viewport.New(m.messageWidth(), m.bodyHeight())
			m.logViewport = viewport.New(m.width, m.bodyHeight())
		}
		m.ready = true
		m.messages.Width = m.messageWidth()
		m.messages.Height = m.bodyHeight()
		m.logViewport.Width = m.width
		m.logViewport.Height = m.bodyHeight()
		m.input.Width = maxInt(m.width-4, 1)
		m.refreshMessages(true)
		m.refreshLogViewport()
		return m, nil

	case ChangesMsg:
		cmd := m.applyChanges(state.ChangeSet(msg))
		return m, cmd

	case StatusMsg:
		m.status = SyncStatus(msg)
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			m.notice = "action failed: " + msg.err.Error()
		}
		if m.backend != nil {
			m.failures = m.backend.Failures()
		}
		return m, nil

	case tickMsg:
		var cmds []tea.Cmd
		if m.backend != nil {
			m.failures = m.backend.Failures()
		}
		if m.view == ViewLogs {
			cmds = append(cmds, m.loadLogs())
		}
		cmds = append(cmds, tickCmd(m.tick))
		return m, tea.Batch(cmds...)

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	if m.mode == modeInsert {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.mode == modeInsert {
		return m.handleInsertKey(msg)
	}
	m.notice = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		m.refreshMessages(false)
		return m, nil

	case key.Matches(msg, m.keys.Compact):
		m.prefs.Compact = !m.prefs.Compact
		m.savePrefs()
		m.refreshMessages(false)
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		if m.backend != nil {
			m.backend.Retry()
		}
		m.notice = "retrying"
		return m, nil

	case key.Matches(msg, m.keys.Resync):
		if m.backend != nil {
			m.backend.Resync()
		}
		m.notice = "reloading snapshot"
		return m, nil

	case key.Matches(msg, m.keys.ViewFailures):
		if m.view == ViewFailures {
			m.view = ViewMessages
		} else {
			m.view = ViewFailures
		}
		if m.backend != nil {
			m.failures = m.backend.Failures()
		}
		return m, nil

	case key.Matches(msg, m.keys.DismissFailure):
		if m.backend != nil && m.backend.DismissLatest() {
			m.failures = m.backend.Failures()
		}
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		m.view = ViewLogs
		return m, m.loadLogs()

	case key.Matches(msg, m.keys.Escape):
		m.view = ViewMessages
		return m, nil
	}

	switch m.view {
	case ViewMessages:
		return m.handleMessagesKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

// handleInsertKey routes keys while the input box has focus.
func (m Model) handleInsertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeNormal
		m.input.Blur()
		return m, nil
	case "enter":
		return m.submitInput()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleMessagesKey processes keys for the message view.
func (m Model) handleMessagesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Insert):
		m.mode = modeInsert
		cmd = m.input.Focus()

	case key.Matches(msg, m.keys.Command):
		m.mode = modeInsert
		m.input.SetValue("/")
		m.input.CursorEnd()
		cmd = m.input.Focus()

	case key.Matches(msg, m.keys.NextWindow):
		cmd = m.selectOffset(1)
	case key.Matches(msg, m.keys.PrevWindow):
		cmd = m.selectOffset(-1)
	case key.Matches(msg, m.keys.FirstWindow):
		if len(m.windows) > 0 {
			cmd = m.selectWindow(m.windows[0].Key)
		}
	case key.Matches(msg, m.keys.LastWindow):
		if len(m.windows) > 0 {
			cmd = m.selectWindow(m.windows[len(m.windows)-1].Key)
		}
	case key.Matches(msg, m.keys.NextUnread):
		if k, ok := m.nextUnread(); ok {
			cmd = m.selectWindow(k)
		}

	case key.Matches(msg, m.keys.ToggleMute):
		m.toggleMute()

	case key.Matches(msg, m.keys.PageUp):
		m.messages.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.messages.PageDown()
	case key.Matches(msg, m.keys.HalfPageUp):
		m.messages.HalfPageUp()
	case key.Matches(msg, m.keys.HalfPageDown):
		m.messages.HalfPageDown()
	}
	return m, cmd
}

// submitInput parses the input line and sends the resulting actions.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	ic := inputContext{
		active:    m.active,
		hasActive: m.hasActive,
		nextSeq:   m.nextSequence(),
		exists: func(k state.WindowKey) bool {
			_, ok := m.store.Window(k)
			return ok
		},
	}
	cmd, err := parseInput(m.input.Value(), ic)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.input.SetValue("")

	var cmds []tea.Cmd
	if cmd.focus != nil {
		if _, ok := m.store.Window(*cmd.focus); ok {
			cmds = append(cmds, m.selectWindow(*cmd.focus))
		} else {
			focus := *cmd.focus
			m.pendingFocus = &focus
		}
	}
	if len(cmd.actions) > 0 {
		cmds = append(cmds, m.submit(cmd.actions))
	}
	return m, tea.Batch(cmds...)
}

// applyChanges brings the cached Store view up to date.
func (m *Model) applyChanges(cs state.ChangeSet) tea.Cmd {
	if m.store == nil {
		return nil
	}
	m.windows = m.store.Summaries()
	m.active, m.hasActive = m.store.Active()

	var cmd tea.Cmd
	if m.pendingFocus != nil {
		if _, ok := m.store.Window(*m.pendingFocus); ok {
			cmd = m.selectWindow(*m.pendingFocus)
			m.pendingFocus = nil
			cs.Active = true
		}
	}
	if !m.hasActive && len(m.windows) > 0 {
		if more, ok := m.store.SetActive(m.windows[0].Key); ok {
			cs.Merge(more)
			m.windows = m.store.Summaries()
			m.active, m.hasActive = m.store.Active()
		}
	}

	m.nickname = ""
	if m.hasActive {
		if conn, ok := m.store.Connection(m.active.Profile); ok {
			m.nickname = conn.Nickname
		}
	}
	if cs.Reloaded || cs.Active || cs.TouchesWindow(m.active) {
		m.refreshMessages(cs.Reloaded || cs.Active)
	}
	return cmd
}

// selectWindow makes key active and tells the relay it is the window to
// restore next time.
func (m *Model) selectWindow(k state.WindowKey) tea.Cmd {
	if m.store == nil {
		return nil
	}
	if _, ok := m.store.SetActive(k); !ok {
		return nil
	}
	m.windows = m.store.Summaries()
	m.active, m.hasActive = k, true
	m.nickname = ""
	if conn, ok := m.store.Connection(k.Profile); ok {
		m.nickname = conn.Nickname
	}
	m.refreshMessages(true)
	return m.submit([]relay.Action{relay.SetInitialWindow(k.Profile, k.Party)})
}

func (m *Model) selectOffset(delta int) tea.Cmd {
	if len(m.windows) == 0 {
		return nil
	}
	idx := m.activeIndex()
	next := idx + delta
	if idx < 0 {
		next = 0
	}
	if next < 0 || next >= len(m.windows) {
		return nil
	}
	return m.selectWindow(m.windows[next].Key)
}

func (m *Model) activeIndex() int {
	if !m.hasActive {
		return -1
	}
	for i, w := range m.windows {
		if w.Key == m.active {
			return i
		}
	}
	return -1
}

// nextUnread finds the first window after the active one with new
// messages, preferring nick-flagged windows.
func (m *Model) nextUnread() (state.WindowKey, bool) {
	n := len(m.windows)
	start := m.activeIndex()
	var fallback *state.WindowKey
	for i := 1; i <= n; i++ {
		w := m.windows[(start+i+n)%n]
		if w.Key == m.active && m.hasActive {
			continue
		}
		if w.IsNickflagged {
			return w.Key, true
		}
		if w.NumNewMessages > 0 && fallback == nil {
			k := w.Key
			fallback = &k
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return state.WindowKey{}, false
}

func (m *Model) toggleMute() {
	if !m.hasActive || m.store == nil {
		return
	}
	w, ok := m.store.Window(m.active)
	if !ok {
		return
	}
	if _, ok := m.store.SetMuted(m.active, !w.IsMuted); ok {
		m.windows = m.store.Summaries()
	}
}

// nextSequence is one past the newest line of the active window.
func (m *Model) nextSequence() int64 {
	if !m.hasActive || m.store == nil {
		return 0
	}
	w, ok := m.store.Window(m.active)
	if !ok || len(w.Lines) == 0 {
		return 0
	}
	return w.Lines[len(w.Lines)-1].Sequence + 1
}

func (m *Model) submit(actions []relay.Action) tea.Cmd {
	if m.backend == nil {
		return nil
	}
	return submitCmd(m.backend, actions)
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.notice = "save prefs: " + err.Error()
	}
}

// Messages

type tickMsg time.Time

type actionResultMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func submitCmd(b Backend, actions []relay.Action) tea.Cmd {
	return func() tea.Msg {
		done := make(chan error, 1)
		b.Submit(actions, func(err error) { done <- err })
		return actionResultMsg{err: <-done}
	}
}

// NewProgram returns the Bubble Tea program for opts. Callers feed it
// ChangesMsg and StatusMsg values with Send.
func NewProgram(opts Options, extra ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(New(opts), append([]tea.ProgramOption{tea.WithAltScreen()}, extra...)...)
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(opts Options) error {
	_, err := NewProgram(opts).Run()
	return err
}
