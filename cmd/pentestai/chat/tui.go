package chatcmder

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

	"github.com/pentestai/pentestai/cmd/pentestai/render"
	"github.com/pentestai/pentestai/pkg/client"
)

// header, status line, input and help
const chromeHeight = 5

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// replyMsg carries the outcome of a Submit or Retry.
type replyMsg struct {
	entry client.Entry
	err   error
}

// connectionMsg reports a change in relay health.
type connectionMsg struct {
	online bool
}

type model struct {
	ctx     context.Context
	session *client.Session
	style   string
	save    func(string)

	md       *render.Renderer
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width      int
	height     int
	busy       bool
	online     bool
	lastFailed string
	notice     string
}

func newModel(ctx context.Context, session *client.Session, style string, save func(string)) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a tool, a technique or a finding..."
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	m := model{
		ctx:      ctx,
		session:  session,
		style:    style,
		save:     save,
		md:       (&render.Renderer{}).WithWidth(style, render.DefaultWidth),
		viewport: viewport.New(render.DefaultWidth, 20),
		input:    ti,
		spinner:  sp,
		width:    render.DefaultWidth,
		online:   true,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.md = (&render.Renderer{}).WithWidth(m.style, msg.Width)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.busy = false
		switch {
		case msg.entry.Sender == client.SenderError:
			m.lastFailed = msg.entry.Retry
		case msg.err != nil:
			m.notice = msg.err.Error()
		default:
			m.lastFailed = ""
		}
		m.refresh()
		return m, nil

	case connectionMsg:
		m.online = msg.online
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Submit adds the user entry from the command goroutine
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if m.busy || text == "" {
			return m, nil
		}
		m.input.Reset()
		m.busy = true
		m.notice = ""
		return m, tea.Batch(m.spinner.Tick, m.send(m.session.Submit, text))

	case "ctrl+r":
		if m.busy {
			return m, nil
		}
		if m.lastFailed == "" {
			m.notice = "Nothing to retry."
			return m, nil
		}
		m.busy = true
		m.notice = ""
		return m, tea.Batch(m.spinner.Tick, m.send(m.session.Retry, m.lastFailed))

	case "tab":
		if m.busy {
			return m, nil
		}
		next := nextModel(m.session.Model(), m.session.Models())
		if err := m.session.SetModel(next); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.save(next)
		m.notice = "Switched to " + displayName(next, m.session.Models())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) send(fn func(context.Context, string) (client.Entry, error), text string) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		entry, err := fn(ctx, text)
		return replyMsg{entry: entry, err: err}
	}
}

func (m *model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m model) transcript() string {
	entries := m.session.Entries()
	if len(entries) == 0 {
		return dimStyle.Render("No messages yet. Type a question and press Enter.")
	}

	var b strings.Builder
	for i, e := range entries {
		switch e.Sender {
		case client.SenderUser:
			b.WriteString(userStyle.Render("You") + "\n")
			b.WriteString(render.Sanitize(e.Text) + "\n")
		case client.SenderBot:
			name := "Assistant"
			if e.Model != nil && e.Model.DisplayName != "" {
				name = e.Model.DisplayName
			}
			b.WriteString(botStyle.Render(name))
			if e.Fallback {
				b.WriteString(dimStyle.Render("  canned reply while the provider quota recovers"))
			}
			b.WriteString("\n" + m.md.Markdown(e.Text))
		case client.SenderError:
			b.WriteString(errorStyle.Render("Error") + "\n")
			b.WriteString(render.Sanitize(e.Text) + "\n")
			b.WriteString(dimStyle.Render(e.Category.Hint()) + "\n")
			if i == len(entries)-1 && m.lastFailed != "" {
				b.WriteString(dimStyle.Render(m.retryHelp()) + "\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) retryHelp() string {
	if m.session.Failures() >= client.DefaultRotateAfter && len(m.session.Models()) > 1 {
		next := nextModel(m.session.Model(), m.session.Models())
		return fmt.Sprintf("Press Ctrl+R to retry with %s.", displayName(next, m.session.Models()))
	}
	return "Press Ctrl+R to retry."
}

func (m model) View() string {
	conn := onlineStyle.Render("online")
	if !m.online {
		conn = offlineStyle.Render("offline")
	}
	header := fmt.Sprintf("%s  %s  %s",
		headerStyle.Render("pentestai"),
		displayName(m.session.Model(), m.session.Models()),
		conn,
	)

	status := m.notice
	if m.busy {
		status = m.spinner.View() + " Thinking..."
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		dimStyle.Render(status),
		m.input.View(),
		dimStyle.Render("enter send  ctrl+r retry  tab model  esc quit"),
	}, "\n")
}
