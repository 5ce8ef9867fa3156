package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/SpandanM110/Chatroom/internal/chat"
	"github.com/SpandanM110/Chatroom/internal/signaling"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of a chat session the interface drives.
type Controller interface {
	Join()
	Next()
	End()
	Leave()
	Say(text string)
}

const helpText = "/next skip partner · /end end chat · /leave leave queue · /join rejoin · /quit exit"

type eventMsg chat.Event

type sessionClosedMsg struct{}

// waitForEvent reads the next session event as a bubbletea command.
func waitForEvent(events <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return sessionClosedMsg{}
		}
		return eventMsg(e)
	}
}

// ChatModel is the interactive chat screen.
type ChatModel struct {
	ctrl   Controller
	events <-chan chat.Event

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	self     string
	partner  string
	status   string
	busy     bool
	lines    []string
	ready    bool
	quitting bool
}

// NewChatModel builds the chat screen around a running session.
func NewChatModel(ctrl Controller, events <-chan chat.Event) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.CharLimit = 2000
	ti.Prompt = "› "
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		ctrl:     ctrl,
		events:   events,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  s,
		status:   "Connecting",
		busy:     true,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 3)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if m.command(line) {
				return m, tea.Quit
			}
			return m, nil
		}

	case eventMsg:
		m.apply(chat.Event(msg))
		cmds = append(cmds, waitForEvent(m.events))

	case sessionClosedMsg:
		m.status = "Disconnected"
		m.busy = false
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// command handles one submitted line and reports whether to quit.
func (m *ChatModel) command(line string) bool {
	if !strings.HasPrefix(line, "/") {
		m.ctrl.Say(line)
		return false
	}
	switch strings.ToLower(line) {
	case "/next", "/skip":
		m.ctrl.Next()
	case "/end":
		m.ctrl.End()
	case "/leave":
		m.ctrl.Leave()
	case "/join":
		m.ctrl.Join()
	case "/quit", "/exit":
		m.quitting = true
		return true
	case "/help":
		m.system(helpText)
	default:
		m.system("Unknown command " + line)
	}
	return false
}

func (m *ChatModel) apply(e chat.Event) {
	switch e.Kind {
	case chat.EventConnected:
		m.self = e.PeerID
		m.system(fmt.Sprintf("%s Connected as %s", IconConnect, short(e.PeerID)))
	case chat.EventSearching:
		m.partner = ""
		m.status = "Looking for someone"
		m.busy = true
	case chat.EventMatched:
		m.partner = e.PeerID
		m.status = "Connecting to partner"
		m.busy = true
		m.system(fmt.Sprintf("%s Matched with %s", IconPeer, short(e.PeerID)))
	case chat.EventChannelOpen:
		m.status = "Chatting"
		m.busy = false
		m.system("You're now chatting. Say hi!")
	case chat.EventPartnerHello:
		if e.Text != "" {
			m.system(fmt.Sprintf("%s Your partner is using %s", IconPeer, e.Text))
		}
	case chat.EventMessage:
		m.message(e)
	case chat.EventEnded:
		m.partner = ""
		switch e.Text {
		case signaling.MessageTypeChatEnded:
			m.system("Your partner ended the chat")
		case chat.ReasonConnectionLost:
			m.system("Lost the direct connection to your partner")
		default:
			m.system("Your partner left")
		}
	case chat.EventIdle:
		m.partner = ""
		m.status = "Idle, /join to look again"
		m.busy = false
	case chat.EventError:
		m.lines = append(m.lines, ErrorStyle.Render(IconError+" "+e.Err.Error()))
	case chat.EventDisconnected:
		m.status = "Disconnected"
		m.busy = false
		m.system("Lost connection to the server")
	}
	m.refresh()
}

func (m *ChatModel) message(e chat.Event) {
	name := PartnerNameStyle.Render("Stranger")
	if e.Mine {
		name = SelfNameStyle.Render("You")
	}
	stamp := TimestampStyle.Render(e.Time.Format(time.Kitchen))
	m.lines = append(m.lines, fmt.Sprintf("%s %s: %s", stamp, name, e.Text))
}

func (m *ChatModel) system(text string) {
	m.lines = append(m.lines, SystemLineStyle.Render(text))
	m.refresh()
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		HeaderStyle.Render(IconChat+" Chatroom"),
		" ",
		StatusStyle.Render(status),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		FooterStyle.Render(helpText),
	)
}

// Status returns the current status line without styling.
func (m *ChatModel) Status() string {
	return m.status
}

// Transcript returns the rendered chat lines.
func (m *ChatModel) Transcript() []string {
	return m.lines
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunChat runs the chat screen until the user quits or the session ends.
func RunChat(ctrl Controller, events <-chan chat.Event) error {
	_, err := tea.NewProgram(NewChatModel(ctrl, events), tea.WithAltScreen()).Run()
	return err
}
