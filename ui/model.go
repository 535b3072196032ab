// Package ui is the terminal transport widget for the player.
package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/JeanRibes/miditools/player"
	"github.com/JeanRibes/miditools/shared"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
)

const defaultBarWidth = 40

type updateMsg shared.Message

func listen(updates <-chan shared.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return updateMsg(msg)
	}
}

type Model struct {
	title    string
	updates  <-chan shared.Message
	control  func(shared.Message)
	progress shared.Message
	bar      progress.Model
	err      string
	quitting bool
}

// New builds the widget. Reports are read from updates; key presses are
// turned into commands passed to control.
func New(title string, updates <-chan shared.Message, control func(shared.Message)) Model {
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(defaultBarWidth),
		progress.WithoutPercentage(),
	)
	return Model{title: title, updates: updates, control: control, bar: bar}
}

func (m Model) Init() tea.Cmd {
	return listen(m.updates)
}

func (m Model) send(msg shared.Message) {
	if m.control != nil {
		m.control(msg)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.send(shared.Message{Type: shared.Quit})
			return m, tea.Quit
		case " ", "p":
			m.send(shared.Message{Type: shared.PlayPause})
		case "s":
			m.send(shared.Message{Type: shared.Stop})
		case "left", "h":
			m.send(shared.Message{Type: shared.Seek, Fraction: -shared.SeekStep})
		case "right", "l":
			m.send(shared.Message{Type: shared.Seek, Fraction: shared.SeekStep})
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, msg.Width-20)

	case updateMsg:
		switch msg.Type {
		case shared.Progress:
			m.progress = shared.Message(msg)
			m.err = ""
		case shared.Error:
			m.err = msg.String
		}
		return m, listen(m.updates)
	}
	return m, nil
}

func (m Model) barWidth() int { return m.bar.Width }

func (m Model) buttons() string {
	play := "▶"
	if m.progress.Boolean {
		play = "⏸"
	}
	return strings.Join([]string{
		dimStyle.Render("⏪"),
		activeStyle.Render(play),
		dimStyle.Render("⏹"),
		dimStyle.Render("⏩"),
	}, " ")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	times := fmt.Sprintf("%s / %s", player.FormatTime(m.progress.Current), player.FormatTime(m.progress.Total))
	var b strings.Builder
	b.WriteString("\n" + titleStyle.Render(m.title) + "\n\n")
	b.WriteString(m.buttons() + "  " + m.bar.ViewAs(math.Min(math.Max(m.progress.Fraction, 0), 1)) + "  " + times + "\n")
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("space:play/pause  s:stop  ←/→:seek  q:quit") + "\n")
	return b.String()
}
