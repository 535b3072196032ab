package ui

import (
	"testing"
	"time"

	"github.com/JeanRibes/miditools/shared"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysBecomeCommands(t *testing.T) {
	t.Parallel()

	var sent []shared.Message
	m := New("song.mid", nil, func(msg shared.Message) { sent = append(sent, msg) })

	keys := []tea.KeyMsg{
		{Type: tea.KeySpace},
		{Type: tea.KeyRunes, Runes: []rune("s")},
		{Type: tea.KeyLeft},
		{Type: tea.KeyRight},
		{Type: tea.KeyRunes, Runes: []rune("x")},
	}
	for _, k := range keys {
		next, cmd := m.Update(k)
		m = next.(Model)
		assert.Nil(t, cmd)
	}
	assert.Equal(t, []shared.Message{
		{Type: shared.PlayPause},
		{Type: shared.Stop},
		{Type: shared.Seek, Fraction: -shared.SeekStep},
		{Type: shared.Seek, Fraction: shared.SeekStep},
	}, sent)
}

func TestQuit(t *testing.T) {
	t.Parallel()

	var sent []shared.Message
	m := New("song.mid", nil, func(msg shared.Message) { sent = append(sent, msg) })
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, []shared.Message{{Type: shared.Quit}}, sent)
	assert.Empty(t, next.View())
}

func TestProgressIsDrawn(t *testing.T) {
	t.Parallel()

	updates := make(chan shared.Message, 1)
	m := New("song.mid", updates, nil)

	updates <- shared.Message{Type: shared.Progress, Boolean: true, Fraction: 0.5, Current: 30 * time.Second, Total: time.Minute}
	msg := m.Init()()
	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd)

	view := next.View()
	assert.Contains(t, view, "song.mid")
	assert.Contains(t, view, "0:30 / 1:00")
	assert.Contains(t, view, "⏸")

	updates <- shared.Message{Type: shared.Error, String: "output lost"}
	next, _ = next.Update(cmd())
	assert.Contains(t, next.View(), "output lost")
}

func TestBarWidthFollowsWindow(t *testing.T) {
	t.Parallel()

	m := New("x", nil, nil)
	assert.Equal(t, defaultBarWidth, m.barWidth())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	assert.Equal(t, 80, next.(Model).barWidth())
	next, _ = m.Update(tea.WindowSizeMsg{Width: 15, Height: 20})
	assert.Equal(t, 10, next.(Model).barWidth())
}

func TestBarFillsItsWidth(t *testing.T) {
	t.Parallel()

	m := New("x", nil, nil)
	for _, f := range []float64{0, 0.5, 1} {
		assert.Equal(t, defaultBarWidth, lipgloss.Width(m.bar.ViewAs(f)))
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Equal(t, 40, lipgloss.Width(next.(Model).bar.ViewAs(0.25)))
	assert.NotEqual(t, m.bar.ViewAs(0), m.bar.ViewAs(1))
}
