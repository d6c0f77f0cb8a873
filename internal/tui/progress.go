package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	percentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00F5D4")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D27A")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Progress renders one bar per download using Bubble Tea. On a
// non-terminal writer it stays silent.
type Progress struct {
	out         io.Writer
	interactive bool
	seq         atomic.Uint64

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out, interactive: IsTerminal(out)}
}

// Start runs the renderer until Stop is called or ctx is done.
func (p *Progress) Start(ctx context.Context) {
	if p == nil || !p.interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program != nil {
		return
	}
	p.program = tea.NewProgram(newProgressModel(),
		tea.WithOutput(p.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
		tea.WithContext(ctx),
	)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop flushes the final frame and waits for the renderer to exit.
func (p *Progress) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	program, done := p.program, p.done
	p.mu.Unlock()
	if program == nil {
		return
	}
	program.Send(stopMsg{})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		program.Kill()
	}
}

func (p *Progress) send(msg tea.Msg) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

// Task is one tracked download.
type Task struct {
	p  *Progress
	id uint64
}

// Track registers a bar labelled label.
func (p *Progress) Track(label string) *Task {
	if p == nil {
		return nil
	}
	t := &Task{p: p, id: p.seq.Add(1)}
	p.send(registerMsg{id: t.id, label: label})
	return t
}

// Update sets the task's completion, 0 to 100.
func (t *Task) Update(percent float64) {
	if t == nil {
		return
	}
	t.p.send(updateMsg{id: t.id, percent: percent})
}

// Done marks the task finished.
func (t *Task) Done(err error) {
	if t == nil {
		return
	}
	t.p.send(finishMsg{id: t.id, err: err})
}

type registerMsg struct {
	id    uint64
	label string
}

type updateMsg struct {
	id      uint64
	percent float64
}

type finishMsg struct {
	id  uint64
	err error
}

type stopMsg struct{}

type progressTask struct {
	label   string
	percent float64
	started time.Time
	done    bool
	err     error
	bar     progress.Model
}

type progressModel struct {
	tasks map[uint64]*progressTask
	order []uint64
	width int
	spin  spinner.Model
}

func newProgressModel() *progressModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle
	return &progressModel{
		tasks: make(map[uint64]*progressTask),
		width: 80,
		spin:  spin,
	}
}

func barWidth(total int) int {
	return max(total-50, 10)
}

func (m *progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		for _, t := range m.tasks {
			t.bar.Width = barWidth(m.width)
		}
	case registerMsg:
		bar := progress.New(progress.WithDefaultGradient())
		bar.Width = barWidth(m.width)
		m.tasks[msg.id] = &progressTask{label: msg.label, started: time.Now(), bar: bar}
		m.order = append(m.order, msg.id)
	case updateMsg:
		if t, ok := m.tasks[msg.id]; ok && !t.done {
			t.percent = min(max(msg.percent, 0), 100)
		}
	case finishMsg:
		if t, ok := m.tasks[msg.id]; ok {
			t.done = true
			t.err = msg.err
			if msg.err == nil {
				t.percent = 100
			}
		}
	case stopMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	var b strings.Builder
	for _, id := range m.order {
		t := m.tasks[id]
		label := labelStyle.Render(truncateLine(t.label, 30))
		switch {
		case t.done && t.err != nil:
			fmt.Fprintf(&b, "%s %s %s\n", failStyle.Render("✗"), label, failStyle.Render(truncateLine(t.err.Error(), max(m.width-36, 10))))
		case t.done:
			fmt.Fprintf(&b, "%s %s %s\n", doneStyle.Render("✓"), label, helpStyle.Render(formatDurationShort(time.Since(t.started))))
		default:
			fmt.Fprintf(&b, "%s %s %s %s\n", m.spin.View(), label, t.bar.ViewAs(t.percent/100), percentStyle.Render(fmt.Sprintf("%5.1f%%", t.percent)))
		}
	}
	return b.String()
}

func truncateLine(text string, width int) string {
	r := []rune(text)
	if width <= 0 || len(r) <= width {
		return text
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func formatDurationShort(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
