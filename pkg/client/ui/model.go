// Package ui implements the terminal chat interface on top of
// bubbletea: a scrolling message viewport, a compose box, a typing
// indicator, and the online user list.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aeolun/chatrelay/pkg/client"
	"github.com/aeolun/chatrelay/pkg/protocol"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	senderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	timeStyle   = lipgloss.NewStyle().Faint(true)
	typingStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

// typingThrottle limits how often a typing frame is sent while the user
// keeps typing.
const typingThrottle = 2 * time.Second

// typingDisplay is how long a received typing indicator stays visible.
const typingDisplay = 3 * time.Second

type eventMsg protocol.Event

type connClosedMsg struct{ err error }

type typingExpiredMsg struct{}

// Model is the bubbletea model for the chat client.
type Model struct {
	conn     *client.Conn
	username string

	viewport viewport.Model
	textarea textarea.Model

	messages []protocol.ChatMessage
	users    []string

	typingUser     string
	lastTypingSent time.Time

	ready  bool
	width  int
	height int
	err    error
}

// New creates the chat model. The connection must already be dialed
// and identified.
func New(conn *client.Conn, username string) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "│ "
	ta.CharLimit = 4096
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return Model{
		conn:     conn,
		username: username,
		textarea: ta,
	}
}

// Init starts listening for server events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForEvent())
}

// waitForEvent blocks on the connection's event channel and delivers
// the next server event as a tea message.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.conn.Events()
		if !ok {
			return connClosedMsg{err: m.conn.Err()}
		}
		return eventMsg(ev)
	}
}

// Update handles terminal and server events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chatHeight := msg.Height - 7
		if chatHeight < 3 {
			chatHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, chatHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = chatHeight
		}
		m.textarea.SetWidth(msg.Width - 4)
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.conn.Close()
			return m, tea.Quit

		case tea.KeyEnter:
			content := strings.TrimSpace(m.textarea.Value())
			if content != "" {
				if err := m.conn.SendChat(m.username, content); err != nil {
					m.err = err
				}
				m.textarea.Reset()
			}
			return m, nil

		default:
			// Let the peer know we're typing, throttled
			if time.Since(m.lastTypingSent) > typingThrottle {
				m.lastTypingSent = time.Now()
				m.conn.SendTyping(m.username)
			}
		}

	case eventMsg:
		cmd := m.handleEvent(protocol.Event(msg))
		return m, tea.Batch(cmd, m.waitForEvent())

	case connClosedMsg:
		m.err = msg.err
		if m.err == nil {
			m.err = fmt.Errorf("connection closed")
		}
		return m, tea.Quit

	case typingExpiredMsg:
		m.typingUser = ""
	}

	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// handleEvent folds one server event into the model.
func (m *Model) handleEvent(ev protocol.Event) tea.Cmd {
	switch ev.Type {
	case protocol.EventHistory:
		m.messages = append(ev.History[:len(ev.History):len(ev.History)], m.messages...)
		m.refreshViewport()

	case protocol.EventMessage:
		m.messages = append(m.messages, ev.Message)
		m.refreshViewport()

	case protocol.EventUserList:
		m.users = ev.Users

	case protocol.EventTyping:
		m.typingUser = ev.Username
		return tea.Tick(typingDisplay, func(time.Time) tea.Msg {
			return typingExpiredMsg{}
		})

	case protocol.EventClear:
		m.messages = nil
		m.refreshViewport()
	}
	return nil
}

// refreshViewport re-renders the message log and scrolls to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.messages {
		b.WriteString(senderStyle.Render(msg.Sender))
		b.WriteString(" ")
		b.WriteString(timeStyle.Render(formatTimestamp(msg.Timestamp)))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the full chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ChatRelay"))
	b.WriteString(statusStyle.Render(fmt.Sprintf("  %d online: %s", len(m.users), strings.Join(m.users, ", "))))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.typingUser != "" {
		b.WriteString(typingStyle.Render(fmt.Sprintf("%s is typing...", m.typingUser)))
	}
	b.WriteString("\n")
	b.WriteString(m.textarea.View())

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.err.Error()))
	}
	return b.String()
}

// formatTimestamp renders a wire timestamp as local wall-clock time.
func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("15:04:05")
}
