// Package monitor is a terminal view of the running session owner.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rbright/voicify-shell/internal/ipc"
)

const (
	// DefaultInterval is the owner polling period.
	DefaultInterval = 100 * time.Millisecond

	// levelAlpha is the weight of a new input level sample in the meter.
	levelAlpha = 0.25

	partialRunes = 160
	minBarWidth  = 10
	maxBarWidth  = 60
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1e1e2e")).
			Background(lipgloss.Color("#89b4fa")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89b4fa")).
			Bold(true)

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))

	stateStyles = map[string]lipgloss.Style{
		"idle":      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		"recording": lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true),
		"uploading": lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7")).Bold(true),
		"finished":  lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af")),
	}
)

// Fetch returns the owner's current status.
type Fetch func(ctx context.Context) (ipc.Response, error)

// SocketFetch polls the owner listening on path.
func SocketFetch(path string, timeout time.Duration) Fetch {
	return func(ctx context.Context) (ipc.Response, error) {
		return ipc.Call(ctx, path, ipc.Request{Command: ipc.CommandStatus}, timeout)
	}
}

type statusMsg struct {
	resp ipc.Response
	err  error
}

type pollMsg struct{}

// Model is the Bubble Tea model for the monitor view.
type Model struct {
	ctx      context.Context
	fetch    Fetch
	interval time.Duration
	bar      progress.Model

	width  int
	polled bool
	status ipc.Response
	level  float64
	err    error
}

// New builds a monitor that polls fetch every interval.
func New(ctx context.Context, fetch Fetch, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(40)),
	}
}

// Run shows the monitor until the user quits or ctx is done.
func Run(ctx context.Context, fetch Fetch, interval time.Duration, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(New(ctx, fetch, interval), opts...).Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd { return m.poll() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-14, minBarWidth), maxBarWidth)

	case statusMsg:
		m = m.apply(msg)
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m Model) poll() tea.Cmd {
	ctx, fetch := m.ctx, m.fetch
	return func() tea.Msg {
		resp, err := fetch(ctx)
		return statusMsg{resp: resp, err: err}
	}
}

// apply folds one poll result into the model. The meter decays toward zero
// whenever the owner is not recording.
func (m Model) apply(msg statusMsg) Model {
	m.polled = true
	m.err = msg.err
	if msg.err != nil {
		m.status = ipc.Response{}
	} else {
		m.status = msg.resp
	}

	target := 0.0
	if m.status.State == "recording" {
		target = m.status.Level
	}
	m.level = smooth(m.level, target)
	return m
}

func smooth(prev float64, next float64) float64 {
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return prev
	}
	next = min(max(next, 0), 1)
	v := prev + levelAlpha*(next-prev)
	if v < 0.001 {
		return 0
	}
	return v
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("voicify-shell monitor"))
	sb.WriteString("\n\n")

	switch {
	case !m.polled:
		sb.WriteString(dimStyle.Render("  connecting…"))
		sb.WriteString("\n")
	case errors.Is(m.err, ipc.ErrNoOwner):
		sb.WriteString(dimStyle.Render("  no voicify-shell owner is running"))
		sb.WriteString("\n")
	case m.err != nil:
		sb.WriteString(errorStyle.Render("  error: " + m.err.Error()))
		sb.WriteString("\n")
	default:
		m.writeStatus(&sb)
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("  q quit"))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) writeStatus(sb *strings.Builder) {
	row := func(label string, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-8s", label)))
		sb.WriteString("  ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	state := m.status.State
	if state == "" {
		state = "idle"
	}
	style, ok := stateStyles[state]
	if !ok {
		style = dimStyle
	}
	label := state
	if m.status.Mode != "" {
		label += "/" + m.status.Mode
	}
	if m.status.Message == "starting" {
		label += " (starting)"
	}
	row("state", style.Render(label))

	if m.status.Session != "" {
		row("session", dimStyle.Render(m.status.Session))
	}
	row("level", m.bar.ViewAs(m.level))

	if partial := strings.TrimSpace(m.status.Partial); partial != "" {
		row("partial", lastRunes(partial, partialRunes))
	}
}

func lastRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return "…" + string(runes[len(runes)-limit:])
}
