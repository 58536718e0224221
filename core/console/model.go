package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/muesli/reflow/wordwrap"
)

// Connection is the server side of the console.
type Connection interface {
	SendCommand(text string) error
	Next() (Frame, error)
}

type (
	frameMsg        Frame
	disconnectedMsg struct{ err error }
	sendFailedMsg   struct{ err error }
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// header and input line
	chromeHeight = 2
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	responseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	commandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	senseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("31"))
)

type entry struct {
	at    time.Time
	style lipgloss.Style
	label string
	text  string
}

type Model struct {
	conn    Connection
	address string
	now     func() time.Time

	viewport viewport.Model
	input    textinput.Model
	entries  []entry
	width    int

	err      error
	quitting bool
}

func NewModel(conn Connection, address string) Model {
	input := textinput.New()
	input.Placeholder = "say something to ema"
	input.Prompt = "> "
	input.Focus()

	view := viewport.New(defaultWidth, defaultHeight-chromeHeight)
	view.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	return Model{
		conn:     conn,
		address:  address,
		now:      time.Now,
		viewport: view,
		input:    input,
		width:    defaultWidth,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

// Err is the reason the connection ended, if it did.
func (m Model) Err() error {
	return m.err
}

func (m Model) listen() tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		frame, err := conn.Next()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return frameMsg(frame)
	}
}

func (m Model) send(text string) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		if err := conn.SendCommand(text); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			m.add(entry{at: m.now(), style: commandStyle, label: "you", text: text})
			return m, m.send(text)
		}

	case frameMsg:
		if e, ok := describe(Frame(msg)); ok {
			if e.at.IsZero() {
				e.at = m.now()
			}
			m.add(e)
		}
		return m, m.listen()

	case disconnectedMsg:
		m.err = msg.err
		m.add(entry{at: m.now(), style: errorStyle, label: "disconnected", text: msg.err.Error()})
		return m, nil

	case sendFailedMsg:
		m.add(entry{at: m.now(), style: errorStyle, label: "not sent", text: msg.err.Error()})
		return m, nil
	}

	var inputCmd, viewCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewCmd)
}

func (m *Model) add(e entry) {
	m.entries = append(m.entries, e)
	m.refresh()
}

func (m *Model) refresh() {
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		line := fmt.Sprintf("%s %s %s", timeStyle.Render(e.at.Format(time.TimeOnly)), e.style.Render(e.label+":"), e.text)
		lines = append(lines, wordwrap.String(line, max(m.width, 1)))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := headerStyle.Render("EMA // " + m.address)
	if m.err != nil {
		header += " " + errorStyle.Render("(offline)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.input.View())
}

// describe turns a server frame into a console entry. ok is false for
// frames not worth showing.
func describe(frame Frame) (entry, bool) {
	text := func(field string) string {
		value, _ := frame.Payload[field].(string)
		return value
	}

	e := entry{at: frame.Timestamp, style: dimStyle, label: frame.Type}
	switch frame.Type {
	case events.KindResponseGenerated.String():
		e.style, e.label, e.text = responseStyle, "ema", text(events.KeyText)
	case events.KindVoiceCommandDetected.String():
		e.style, e.label, e.text = commandStyle, "heard", text(events.KeyText)
	case events.KindSpeakingStarted.String():
		e.label, e.text = "speaking", text(events.KeyText)
	case events.KindSpeakingEnded.String():
		return entry{}, false
	case events.KindUserIdentified.String():
		e.style, e.label, e.text = senseStyle, "vision", "identified "+text(events.KeyUser)
	case events.KindUserEmotionDetected.String():
		score, _ := frame.Payload[events.KeyScore].(float64)
		e.style, e.label = senseStyle, "emotion"
		e.text = fmt.Sprintf("%s (%.2f)", text(events.KeyEmotion), score)
	case "pong":
		e.label, e.text = "server", "pong"
	case "error":
		e.style, e.label, e.text = errorStyle, "error", frame.Text
	default:
		e.text = text(events.KeyText)
	}
	return e, true
}
