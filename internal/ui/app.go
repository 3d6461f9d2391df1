package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/unreadbell/internal/logtail"
	"github.com/five82/unreadbell/internal/prefs"
	"github.com/five82/unreadbell/internal/state"
)

// View represents the current active pane.
type View int

const (
	ViewUnread View = iota
	ViewLogs
)

const (
	defaultPollTick   = time.Second
	defaultStaleAfter = 3 * time.Minute
	maxLogLines       = 500
)

// Options configures the UI.
type Options struct {
	Store *state.Store
	// LogPath is the relay log file shown in the logs pane. Empty hides it.
	LogPath string
	// Source names what the listener is bound to, for the header.
	Source     string
	PollTick   time.Duration
	StaleAfter time.Duration
	Prefs      prefs.Prefs
	PrefsPath  string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	store      *state.Store
	logPath    string
	source     string
	prefsPath  string
	pollTick   time.Duration
	staleAfter time.Duration

	// UI state
	keys        keyMap
	help        help.Model
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool
	now         time.Time

	// Data state
	view     state.View
	logLines []string
	logErr   error
	follow   bool

	unreadViewport viewport.Model
	logViewport    viewport.Model
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = defaultPollTick
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}
	current := ViewUnread
	if p.View == "logs" && opts.LogPath != "" {
		current = ViewLogs
	}

	return Model{
		store:       opts.Store,
		logPath:     opts.LogPath,
		source:      opts.Source,
		prefsPath:   opts.PrefsPath,
		pollTick:    pollTick,
		staleAfter:  staleAfter,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		theme:       GetTheme(p.Theme),
		currentView: current,
		follow:      p.Follow,
		now:         time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchViewCmd(m.store))
	}
	if m.logPath != "" {
		cmds = append(cmds, readLogsCmd(m.logPath))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeViewports()
		m.ready = true
		m.refreshUnread()
		m.refreshLogs()
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		cmds := []tea.Cmd{tickCmd(m.pollTick)}
		if m.store != nil {
			cmds = append(cmds, fetchViewCmd(m.store))
		}
		if m.logPath != "" && (m.currentView == ViewLogs || m.follow) {
			cmds = append(cmds, readLogsCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case viewMsg:
		m.view = state.View(msg)
		m.refreshUnread()
		return m, nil

	case logLinesMsg:
		m.logLines = []string(msg)
		m.logErr = nil
		m.refreshLogs()
		return m, nil

	case logErrorMsg:
		m.logErr = msg.err
		return m, nil
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

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.refreshUnread()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		if m.currentView == ViewUnread {
			return m.switchView(ViewLogs)
		}
		return m.switchView(ViewUnread)

	case key.Matches(msg, m.keys.ViewUnread):
		return m.switchView(ViewUnread)

	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)

	case key.Matches(msg, m.keys.ToggleFollow):
		m.follow = !m.follow
		if m.follow {
			m.logViewport.GotoBottom()
		}
		m.savePrefs()
		return m, nil
	}

	vp := m.activeViewport()
	switch {
	case key.Matches(msg, m.keys.Up):
		vp.LineUp(1)
	case key.Matches(msg, m.keys.Down):
		vp.LineDown(1)
	case key.Matches(msg, m.keys.PageUp):
		vp.ViewUp()
	case key.Matches(msg, m.keys.PageDown):
		vp.ViewDown()
	case key.Matches(msg, m.keys.Top):
		vp.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		vp.GotoBottom()
	default:
		return m, nil
	}
	// Manual scrolling in the logs pane pauses follow until it is re-enabled.
	if m.currentView == ViewLogs && !vp.AtBottom() {
		m.follow = false
	}
	return m, nil
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	if v == ViewLogs && m.logPath == "" {
		return m, nil
	}
	m.currentView = v
	m.savePrefs()
	if v == ViewLogs {
		return m, readLogsCmd(m.logPath)
	}
	return m, nil
}

func (m *Model) activeViewport() *viewport.Model {
	if m.currentView == ViewLogs {
		return &m.logViewport
	}
	return &m.unreadViewport
}

// savePrefs persists the theme, pane and follow mode. Failures are ignored;
// the UI keeps working with in-memory state.
func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	view := "unread"
	if m.currentView == ViewLogs {
		view = "logs"
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, View: view, Follow: m.follow})
}

func (m *Model) resizeViewports() {
	// Two header lines plus the framing box.
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	w := m.width - 4
	if w < 1 {
		w = 1
	}
	if !m.ready {
		m.unreadViewport = viewport.New(w, h)
		m.logViewport = viewport.New(w, h)
		return
	}
	m.unreadViewport.Width, m.unreadViewport.Height = w, h
	m.logViewport.Width, m.logViewport.Height = w, h
}

func (m *Model) refreshUnread() {
	if !m.ready {
		return
	}
	m.unreadViewport.SetContent(m.renderUnreadContent())
}

func (m *Model) refreshLogs() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(m.renderLogContent())
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

// Messages

type tickMsg time.Time

type viewMsg state.View

type logLinesMsg []string

type logErrorMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchViewCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return viewMsg(store.Snapshot())
	}
}

func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		lines, err := logtail.Read(path, maxLogLines)
		if err != nil {
			return logErrorMsg{err: err}
		}
		return logLinesMsg(logtail.Format(lines))
	}
}

// Run starts the Bubble Tea program and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
