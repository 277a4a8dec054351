package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/apiclient"
)

// ChatPort is the TUI-facing subset of the API client.
type ChatPort interface {
	Username() string
	History(ctx context.Context) ([]apiclient.Turn, error)
	Chat(ctx context.Context, message string, sessionID uint) (*apiclient.ChatReply, error)
	ClearHistory(ctx context.Context) error
}

type entry struct {
	question string
	reply    *apiclient.ChatReply
}

type historyMsg struct {
	turns []apiclient.Turn
	err   error
}

type replyMsg struct {
	question string
	reply    *apiclient.ChatReply
	err      error
}

type clearedMsg struct{ err error }

// Model is the Bubble Tea model for the chat client.
type Model struct {
	client     ChatPort
	timeout    time.Duration
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	history    []apiclient.Turn
	entries    []entry
	sessionID  uint
	showPrompt bool
	waiting    bool
	status     string
	ready      bool
}

func New(client ChatPort, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 2000
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		client:   client,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Loading history...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		turns, err := m.client.History(ctx)
		return historyMsg{turns: turns, err: err}
	}
}

func (m Model) send(question string) tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		reply, err := m.client.Chat(ctx, question, sessionID)
		return replyMsg{question: question, reply: reply, err: err}
	}
}

func (m Model) clear() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		return clearedMsg{err: m.client.ClearHistory(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header, status and spacer lines
		reserved := 3 + ih + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = msg.turns
			m.status = fmt.Sprintf("Loaded %d remembered questions. Ctrl+P toggles prompt, Ctrl+L clears memory.", len(msg.turns))
		}
		m.refresh()
		return m, nil

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.reply.SessionID
		m.entries = append(m.entries, entry{question: msg.question, reply: msg.reply})
		m.status = fmt.Sprintf("%d sources used", len(msg.reply.Sources))
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case clearedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = nil
			m.status = "Memory cleared."
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlP:
			m.showPrompt = !m.showPrompt
			m.refresh()
			return m, nil
		case tea.KeyCtrlL:
			return m, m.clear()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.status = "Thinking..."
			return m, tea.Batch(m.send(q), m.spinner.Tick)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docchat") + " " + mutedStyle.Render("signed in as "+m.client.Username())
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	if len(m.history) > 0 {
		b.WriteString(mutedStyle.Render("Remembered questions:") + "\n")
		for _, t := range m.history {
			b.WriteString(mutedStyle.Render("  - "+t.Content) + "\n")
		}
		b.WriteString("\n")
	}
	if len(m.entries) == 0 {
		b.WriteString("No messages yet.")
		return b.String()
	}
	width := max(20, m.viewport.Width-2)
	for _, e := range m.entries {
		b.WriteString(userStyle.Render("You: ") + e.question + "\n")
		if m.showPrompt {
			b.WriteString(promptStyle.Width(width).Render(e.reply.Prompt) + "\n")
		}
		b.WriteString(answerStyle.Render("Assistant: ") + lipgloss.NewStyle().Width(width).Render(e.reply.Response) + "\n")
		for _, s := range e.reply.Sources {
			scope := "private"
			if s.IsPublic {
				scope = "public"
			}
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%s, %s, %.3f]", s.Source, scope, s.Similarity)) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
