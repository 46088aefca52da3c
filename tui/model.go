package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bond/confirm"
	"bond/journal"
)

const (
	activityLimit  = 50
	requestTimeout = 10 * time.Second
)

var titleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFDF5")).
	Background(lipgloss.Color("#25A065")).
	Padding(0, 1)

var (
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#25A065"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
)

type tickMsg time.Time

type refreshedMsg struct {
	pending  []confirm.Request
	activity []journal.Entry
	err      error
}

type decidedMsg struct {
	decision Decision
	err      error
}

type Model struct {
	api      API
	interval time.Duration
	keys     keyMap
	help     help.Model
	viewport viewport.Model
	ready    bool

	pending  []confirm.Request
	activity []journal.Entry
	selected int
	status   string
	err      error
}

func NewModel(api API, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		api:      api,
		interval: interval,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		pending, err := api.Pending(ctx)
		if err != nil {
			return refreshedMsg{err: err}
		}
		activity, err := api.Activity(ctx, activityLimit)
		return refreshedMsg{pending: pending, activity: activity, err: err}
	}
}

func (m Model) decide(id string, approve bool) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		d, err := api.Decide(ctx, id, approve)
		return decidedMsg{decision: d, err: err}
	}
}

// Selected returns the highlighted request, if any.
func (m Model) Selected() (confirm.Request, bool) {
	if m.selected < 0 || m.selected >= len(m.pending) {
		return confirm.Request{}, false
	}
	return m.pending[m.selected], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.pending)-1 {
				m.selected++
			}
		case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Dismiss):
			req, ok := m.Selected()
			if !ok {
				break
			}
			approve := key.Matches(msg, m.keys.Approve)
			m.status = fmt.Sprintf("sending %s…", req.Label)
			cmds = append(cmds, m.decide(req.ID, approve))
		case key.Matches(msg, m.keys.Refresh):
			cmds = append(cmds, m.refresh())
		}
		// Keep arrow keys for the selection, not the viewport.
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		height := msg.Height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.pendingView()) - 2
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.viewport.SetContent(m.activityView())

	case tickMsg:
		cmds = append(cmds, m.refresh(), m.tick())

	case refreshedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.pending = msg.pending
			m.activity = msg.activity
			if m.selected >= len(m.pending) {
				m.selected = max(0, len(m.pending)-1)
			}
			m.viewport.SetContent(m.activityView())
		}

	case decidedMsg:
		m.status = decisionText(msg.decision, msg.err)
		cmds = append(cmds, m.refresh())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func decisionText(d Decision, err error) string {
	label := d.Request.Label
	switch {
	case err != nil && label == "":
		return errorStyle.Render(err.Error())
	case err != nil:
		return errorStyle.Render(fmt.Sprintf("%s: %v", label, err))
	case d.Request.Status == confirm.Dismissed:
		return dimStyle.Render("dismissed " + label)
	case d.Result != nil && d.Result.Success:
		return okStyle.Render(d.Result.Message)
	case d.Result != nil:
		return errorStyle.Render(d.Result.Error)
	}
	return label
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return strings.Join([]string{
		m.headerView(),
		m.pendingView(),
		m.viewport.View(),
		m.footerView(),
	}, "\n")
}

func (m Model) headerView() string {
	title := titleStyle.Render("bond · confirmations")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m Model) pendingView() string {
	if len(m.pending) == 0 {
		return dimStyle.Render("  nothing awaiting confirmation")
	}
	var b strings.Builder
	for i, req := range m.pending {
		label := "  " + req.Label
		if i == m.selected {
			label = selectedStyle.Render("> " + req.Label)
		}
		b.WriteString(label + "  " + dimStyle.Render(req.Sentence))
		if i < len(m.pending)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) activityView() string {
	var b strings.Builder
	for _, e := range m.activity {
		mark := dimStyle.Render("-")
		switch e.Kind {
		case journal.KindExecuted:
			mark = okStyle.Render("✓")
		case journal.KindFailed:
			mark = errorStyle.Render("✗")
		}
		text := e.Label
		if e.Message != "" {
			text += ": " + e.Message
		}
		fmt.Fprintf(&b, "%s %s %s\n", dimStyle.Render(e.At.Format("15:04:05")), mark, text)
	}
	return b.String()
}

func (m Model) footerView() string {
	status := m.status
	if m.err != nil {
		status = errorStyle.Render(m.err.Error())
	}
	if status == "" {
		return m.help.View(m.keys)
	}
	return status + "\n" + m.help.View(m.keys)
}

// Run starts the console until the user quits or ctx is done.
func Run(ctx context.Context, api API, interval time.Duration) error {
	p := tea.NewProgram(NewModel(api, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
