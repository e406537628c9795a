package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/relaybus/internal/logstore"
)

const maxBufferedEntries = 2000

type tickMsg time.Time
type reconnectMsg struct{}

// Model is the main BubbleTea model for the watch TUI. It tails the backend
// node's log stream: a header with health, a scrollable viewport of
// severity-colored lines, and a follow mode that sticks to the tail.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int
	ready  bool

	viewport viewport.Model
	follow   bool

	entries    []logstore.Entry
	health     healthMsg
	connected  bool
	lastError  string
	generation int64

	theme Theme

	// Communication
	stream chan logstore.Entry
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL: apiURL,
		apiKey: apiKey,
		follow: true,
		theme:  NewDefaultTheme(),
		stream: make(chan logstore.Entry, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.stream),
		receiveNextEntry(m.stream),
		fetchHealth(m.apiURL, m.apiKey),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
		case "c":
			return m, clearLogs(m.apiURL, m.apiKey)
		case "g":
			m.follow = false
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		default:
			// Scrolling detaches follow mode.
			switch msg.String() {
			case "up", "k", "pgup", "b":
				m.follow = false
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.renderEntries())
		if m.follow {
			m.viewport.GotoBottom()
		}

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case entryMsg:
		e := logstore.Entry(msg)
		m.entries = append(m.entries, e)
		if len(m.entries) > maxBufferedEntries {
			m.entries = m.entries[len(m.entries)-maxBufferedEntries:]
		}
		m.connected = true
		m.lastError = ""
		m.viewport.SetContent(m.renderEntries())
		if m.follow {
			m.viewport.GotoBottom()
		}
		return m, receiveNextEntry(m.stream)

	case healthMsg:
		// A generation bump means the store was cleared on the node side.
		if msg.Generation != m.generation {
			m.generation = msg.Generation
			m.entries = nil
			m.viewport.SetContent(m.renderEntries())
		}
		m.health = msg
		m.connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)()
		})

	case clearedMsg:
		m.entries = nil
		m.viewport.SetContent(m.renderEntries())
		return m, nil

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "stream disconnected, reconnecting..."
		// The receiveNextEntry goroutine is still waiting on the channel and
		// will pick up entries from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.stream)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)()
		})
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "Connecting to relaybus..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

func (m Model) renderHeader() string {
	status := m.theme.Error.Render("● offline")
	if m.connected {
		status = m.theme.Header.Render("● connected")
	}

	title := m.theme.Title.Render("RELAYBUS WATCH")
	stats := m.theme.Dim.Render(fmt.Sprintf("logs %d/%d  uptime %s",
		m.health.LogCount, m.health.LogCapacity,
		(time.Duration(m.health.UptimeSeconds) * time.Second).String()))

	line := lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", status, "  ", stats)
	return lipgloss.JoinVertical(lipgloss.Left, line, "")
}

func (m Model) renderFooter() string {
	mode := "follow"
	if !m.follow {
		mode = fmt.Sprintf("scroll %3.f%%", m.viewport.ScrollPercent()*100)
	}

	help := m.theme.Dim.Render(
		fmt.Sprintf(" [q] quit • [f] %s • [c] clear • [g/G] top/bottom", mode))
	if m.lastError != "" {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Warn.Render(" ⚠ "+m.lastError), help)
	}
	return lipgloss.JoinVertical(lipgloss.Left, "", help)
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return m.theme.Dim.Render("  Waiting for log entries...")
	}

	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		lines = append(lines, m.formatEntry(e))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) formatEntry(e logstore.Entry) string {
	ts := m.theme.Dim.Render(e.At.Format("15:04:05.000"))
	level := m.theme.SeverityStyle(e.Level).Render(fmt.Sprintf("%-5s", e.Level.String()))

	msg := e.Message
	if e.Source != "" {
		msg = m.theme.Source.Render("["+e.Source+"] ") + msg
	}
	return fmt.Sprintf("%s %s %s", ts, level, msg)
}
