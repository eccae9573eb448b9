// Package tui provides a terminal chat with the planner, rendering inline
// buttons as a selectable grid.
package tui

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"planday/internal/chat"
)

// Handler processes one chat event, typically (*bot.Bot).Handle
type Handler func(ctx context.Context, ev chat.Event) error

// Focus indicates which area receives key presses
type Focus int

const (
	FocusInput Focus = iota
	FocusButtons
)

// Model represents the TUI state
type Model struct {
	handle  Handler
	console *Console
	ctx     context.Context
	userID  int64
	chatID  int64

	// Data
	messages []Message
	busy     bool
	lastErr  error

	// Selection
	focus Focus
	row   int
	col   int

	input textinput.Model

	// UI dimensions
	width  int
	height int

	// Styles
	userStyle      lipgloss.Style
	botStyle       lipgloss.Style
	buttonStyle    lipgloss.Style
	selectedStyle  lipgloss.Style
	staleStyle     lipgloss.Style
	helpStyle      lipgloss.Style
	statusBarStyle lipgloss.Style
}

// RefreshMsg asks the model to reload the transcript
type RefreshMsg struct{}

type handledMsg struct {
	err error
}

// New creates a console model chatting as userID
func New(handle Handler, console *Console, userID int64) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help..."
	ti.CharLimit = 512
	ti.Focus()

	return &Model{
		handle:  handle,
		console: console,
		ctx:     context.Background(),
		userID:  userID,
		chatID:  userID,
		input:   ti,
		focus:   FocusInput,
		userStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		botStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		buttonStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		staleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	m.messages = m.console.Messages()
	return textinput.Blink
}

// dispatch runs the handler off the UI goroutine
func (m *Model) dispatch(ev chat.Event) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		return handledMsg{err: m.handle(m.ctx, ev)}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case handledMsg:
		m.busy = false
		m.lastErr = msg.err
		m.reload()
		return m, nil

	case RefreshMsg:
		m.reload()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.focus == FocusButtons {
			return m.handleButtonKeys(msg)
		}
		return m.handleInputKeys(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.busy {
			return m, nil
		}
		m.input.Reset()
		m.console.addUser(text)
		m.reload()
		return m, m.dispatch(chat.NewTextEvent(m.userID, m.chatID, text))

	case tea.KeyTab:
		if _, kb := m.activeKeyboard(); len(kb) > 0 {
			m.focus = FocusButtons
			m.input.Blur()
		}
		return m, nil

	case tea.KeyEsc:
		if m.input.Value() == "" {
			return m, tea.Quit
		}
		m.input.Reset()
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleButtonKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id, kb := m.activeKeyboard()
	if len(kb) == 0 {
		return m, m.focusInput()
	}

	switch msg.String() {
	case "tab", "esc":
		return m, m.focusInput()

	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < len(kb)-1 {
			m.row++
		}
	case "left", "h":
		if m.col > 0 {
			m.col--
		}
	case "right", "l":
		if m.col < len(kb[m.row])-1 {
			m.col++
		}

	case "enter", " ":
		if m.busy {
			return m, nil
		}
		button := kb[m.row][m.col]
		return m, m.dispatch(chat.Event{
			Kind:      chat.EventButton,
			UserID:    m.userID,
			ChatID:    m.chatID,
			MessageID: id,
			Payload:   button.Payload,
			QueryID:   strconv.Itoa(id) + ":" + button.Payload,
		})
	}

	m.clampSelection(kb)
	return m, nil
}

func (m *Model) focusInput() tea.Cmd {
	m.focus = FocusInput
	return m.input.Focus()
}

// reload pulls the transcript and keeps the selection inside the active keyboard
func (m *Model) reload() {
	m.messages = m.console.Messages()
	_, kb := m.activeKeyboard()
	if len(kb) == 0 {
		m.row, m.col = 0, 0
		if m.focus == FocusButtons {
			m.focus = FocusInput
			m.input.Focus()
		}
		return
	}
	m.clampSelection(kb)
}

func (m *Model) clampSelection(kb chat.Keyboard) {
	if m.row >= len(kb) {
		m.row = len(kb) - 1
	}
	if m.row < 0 {
		m.row = 0
	}
	if m.col >= len(kb[m.row]) {
		m.col = len(kb[m.row]) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
}

// activeKeyboard returns the most recent bot message carrying buttons.
func (m *Model) activeKeyboard() (int, chat.Keyboard) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if !msg.FromUser && len(msg.Keyboard) > 0 {
			return msg.ID, msg.Keyboard
		}
	}
	return 0, nil
}

// =============================================================================
// Rendering
// =============================================================================

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	transcript := m.renderTranscript()

	// Keep the newest lines that fit above the input and status bar
	lines := strings.Split(transcript, "\n")
	if room := m.height - 3; room > 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderTranscript() string {
	activeID, _ := m.activeKeyboard()
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for _, msg := range m.messages {
		if msg.FromUser {
			b.WriteString(m.userStyle.Render("> " + msg.Text))
			b.WriteString("\n")
			continue
		}
		b.WriteString(m.botStyle.Width(width).Render(msg.Text))
		b.WriteString("\n")
		if len(msg.Keyboard) > 0 {
			b.WriteString(m.renderKeyboard(msg.Keyboard, msg.ID == activeID))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderKeyboard(kb chat.Keyboard, active bool) string {
	var b strings.Builder
	for r, row := range kb {
		labels := make([]string, 0, len(row))
		for c, button := range row {
			label := "[ " + button.Label + " ]"
			switch {
			case !active:
				label = m.staleStyle.Render(label)
			case m.focus == FocusButtons && r == m.row && c == m.col:
				label = m.selectedStyle.Render("▸" + label)
			default:
				label = m.buttonStyle.Render(label)
			}
			labels = append(labels, label)
		}
		b.WriteString("  " + strings.Join(labels, " ") + "\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := "planday console"
	if m.busy {
		left += " …"
	} else if m.lastErr != nil {
		left += " ⚠ " + m.lastErr.Error()
	}

	right := "tab:buttons  enter:send  ctrl+c:quit"
	if m.focus == FocusButtons {
		right = "arrows:select  enter:press  tab/esc:type"
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}
