package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/formats"
)

type quitMsg struct{}

func quitAfterDelay() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return quitMsg{}
	})
}

type pickerModel struct {
	viewport viewport.Model
	title    string
	ready    bool
	rows     []formats.Format
	selected int
	chosen   bool
	quitting bool
}

func newPickerModel(l *downloader.Listing) *pickerModel {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7FDBFF"))

	m := &pickerModel{
		viewport: vp,
		title:    l.Title,
		rows:     Rows(l),
	}
	m.updateContent()
	return m
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.quitting {
		if _, ok := msg.(quitMsg); ok {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		const chrome = 6 // title, help and border lines
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = msg.Height - chrome
		m.viewport, cmd = m.viewport.Update(msg)
		m.ready = true
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, quitAfterDelay()
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "home", "g":
			m.selected = 0
			m.updateContent()
		case "end", "G":
			m.selected = max(len(m.rows)-1, 0)
			m.updateContent()
		case "enter":
			if m.selected < len(m.rows) {
				m.chosen = true
				m.quitting = true
				return m, quitAfterDelay()
			}
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			if idx := int(msg.String()[0] - '1'); idx < len(m.rows) {
				m.selected = idx
				m.updateContent()
			}
		}
		return m, nil
	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case quitMsg:
		return m, tea.Quit
	}
	return m, nil
}

// move wraps around both ends.
func (m *pickerModel) move(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.selected = (m.selected + delta + len(m.rows)) % len(m.rows)
	m.updateContent()
}

func (m *pickerModel) updateContent() {
	var b strings.Builder
	b.WriteString(tableHeader())
	b.WriteString("\n")
	for i, f := range m.rows {
		line := formatRow(i, f)
		if i == m.selected {
			line = selectedStyle.Render(line)
		} else {
			line = rowStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())

	target := 1 + m.selected
	switch {
	case target < m.viewport.YOffset:
		m.viewport.SetYOffset(target)
	case target >= m.viewport.YOffset+m.viewport.Height-2:
		m.viewport.SetYOffset(target - m.viewport.Height + 3)
	}
}

func (m *pickerModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString(" ")
	switch {
	case m.quitting && m.chosen:
		f := m.rows[m.selected]
		b.WriteString(helpStyle.Render(fmt.Sprintf("Selected: %s %s", f.Container, f.QualityLabel)))
	case m.quitting:
		b.WriteString(helpStyle.Render("Cancelled"))
	default:
		b.WriteString(helpStyle.Render("↑/↓ select · Enter download · q quit"))
	}
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	return b.String()
}

// Choice returns the picked rendition, if any.
func (m *pickerModel) Choice() (formats.Format, bool) {
	if !m.chosen || m.selected >= len(m.rows) {
		return formats.Format{}, false
	}
	return m.rows[m.selected], true
}

// RunPicker shows the listing full screen on out and returns the rendition
// the user picked. ok is false when the user quit without choosing.
func RunPicker(l *downloader.Listing, in io.Reader, out io.Writer) (formats.Format, bool, error) {
	model := newPickerModel(l)
	if len(model.rows) == 0 {
		return formats.Format{}, false, nil
	}
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithInput(in), tea.WithOutput(out))
	result, err := p.Run()
	if err != nil {
		return formats.Format{}, false, err
	}
	m, ok := result.(*pickerModel)
	if !ok {
		return formats.Format{}, false, nil
	}
	f, chosen := m.Choice()
	return f, chosen, nil
}
