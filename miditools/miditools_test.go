package miditools

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/JeanRibes/miditools/music"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func TestEventNoteDetection(t *testing.T) {
	t.Parallel()

	on := NewEvent(0, 0x91, 60, 100, 0)
	assert.True(t, on.HasNote())
	assert.True(t, on.IsNoteOn())
	assert.Equal(t, uint8(1), on.Channel())

	zero := NewEvent(0, 0x90, 60, 0, 0)
	assert.False(t, zero.IsNoteOn())
	assert.True(t, zero.IsNoteOff())

	cc := NewEvent(0, 0xB0, 7, 100, 0)
	assert.False(t, cc.HasNote())
	_, ok := cc.NoteNumber()
	assert.False(t, ok)
	_, err := cc.ToNote()
	assert.ErrorIs(t, err, ErrNotANote)
}

func TestEventTranspose(t *testing.T) {
	t.Parallel()

	n, err := NewEvent(0, 0x90, 60, 80, -1).ToNote()
	require.NoError(t, err)
	assert.Equal(t, 48, n.Pitch.MIDI)
	assert.Equal(t, 80, n.Velocity)

	_, err = NewEvent(0, 0x90, 120, 80, 1).ToNote()
	assert.ErrorIs(t, err, ErrNoteOutOfRange)
}

func TestEventMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, midi.NoteOn(0, 72, 90), NewEvent(0, 0x90, 60, 90, 1).Message())
	assert.Len(t, NewEvent(0, 0xF8, 0, 0, 0).Message(), 1)
	assert.Len(t, NewEvent(0, 0xC0, 5, 0, 0).Message(), 2)

	ev := EventFromMessage(midi.NoteOff(2, 64), 10, 0)
	assert.True(t, ev.IsNoteOff())
	assert.Equal(t, uint8(2), ev.Channel())
	assert.Equal(t, int64(10), ev.Timestamp)
}

func TestQuantize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed int64
		tempo   float64
		want    float64
	}{
		{"one beat", 1000, 60, 1},
		{"four beats", 4000, 60, 4},
		{"long", 9000, 60, 4},
		{"three and a half", 3500, 60, 3},
		{"just above two", 2250, 60, 2},
		{"two", 2000, 60, 2},
		{"five quarters", 1250, 60, 1},
		{"three quarters", 750, 60, 0.5},
		{"nothing", 0, 60, 0.125},
		{"half", 500, 60, 0.5},
		{"one and a half", 1500, 60, 1.5},
		{"fast tempo", 500, 120, 1},
		{"no tempo", 1000, 0, 1},
		{"backwards", -300, 60, 0.125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Quantize(1000+tt.elapsed, 1000, tt.tempo))
		})
	}
}

func TestQuantizerFix(t *testing.T) {
	t.Parallel()

	q := NewQuantizer(FixedTempo(60), 0)
	assert.Nil(t, q.Fix(nil, 5000))
	assert.Equal(t, int64(0), q.Previous())

	n := music.NewNote(60)
	q.Fix(n, 2000)
	assert.Equal(t, 2.0, n.QuarterLength())
	assert.Equal(t, int64(2000), q.Previous())

	q.Fix(n, 1500)
	assert.Equal(t, 0.125, n.QuarterLength())
	assert.Equal(t, int64(2000), q.Previous())
}

func TestQuantizerMeasureKeepsReference(t *testing.T) {
	t.Parallel()

	q := NewQuantizer(FixedTempo(120), 1000)
	n := music.NewNote(60)
	q.Measure(n, 2000)
	assert.Equal(t, 2.0, n.QuarterLength())
	assert.Equal(t, int64(1000), q.Previous())
	assert.Nil(t, q.Measure(nil, 3000))

	q.Mark(1500)
	assert.Equal(t, int64(1500), q.Previous())
	q.Mark(1200)
	assert.Equal(t, int64(1500), q.Previous(), "never moves backward")
}

func TestAggregator(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	a := NewAggregator(100 * time.Millisecond)
	assert.False(t, a.Collecting())
	assert.Nil(t, a.Tick(start))

	assert.True(t, a.Add(music.NewNote(60), start))
	assert.True(t, a.Add(music.NewNote(64), start.Add(30*time.Millisecond)))
	assert.False(t, a.Add(music.NewNote(60), start.Add(40*time.Millisecond)))
	assert.True(t, a.Add(music.NewNote(67), start.Add(90*time.Millisecond)))
	assert.Nil(t, a.Tick(start.Add(99*time.Millisecond)))

	el := a.Tick(start.Add(100 * time.Millisecond))
	require.IsType(t, &music.Chord{}, el)
	assert.Equal(t, []music.Pitch{{MIDI: 60}, {MIDI: 64}, {MIDI: 67}}, el.Pitches())
	assert.False(t, a.Collecting())
}

func TestAggregatorSingleNote(t *testing.T) {
	t.Parallel()

	a := NewAggregator(0)
	assert.Equal(t, DefaultMaxDelay, a.MaxDelay())

	n := music.NewNote(62)
	a.Add(n, time.Unix(0, 0))
	assert.Same(t, n, a.Flush())
	assert.Nil(t, a.Flush())
}

func TestKeySignature(t *testing.T) {
	t.Parallel()

	g, err := ParseKeySignature("G major")
	require.NoError(t, err)
	assert.Equal(t, KeySignature(1), g)
	assert.Equal(t, 66, g.Alter(65))
	assert.Equal(t, 60, g.Alter(60))

	bb, err := ParseKeySignature("Bb")
	require.NoError(t, err)
	assert.Equal(t, 70, bb.Alter(71))
	assert.Equal(t, 63, bb.Alter(64))

	fs, err := ParseKeySignature("f# minor")
	require.NoError(t, err)
	assert.Equal(t, KeySignature(3), fs)

	c, err := ParseKeySignature("")
	require.NoError(t, err)
	assert.Equal(t, 127, c.Alter(127))
	assert.Equal(t, 127, KeySignature(6).Alter(127))

	_, err = ParseKeySignature("h major")
	assert.Error(t, err)
	_, err = ParseKeySignature("c dorian")
	assert.Error(t, err)
}

func TestClockTempo(t *testing.T) {
	t.Parallel()

	c := NewClockTempo(0)
	assert.Equal(t, DefaultTempo, c.Tempo())

	now := time.Unix(0, 0)
	for i := 0; i <= pulsesPerQuarter; i++ {
		c.Pulse(now)
		now = now.Add(25 * time.Millisecond)
	}
	assert.InDelta(t, 100.0, c.Tempo(), 1e-9)

	c.Reset()
	assert.Equal(t, DefaultTempo, c.Tempo())
}

func TestPortSinkDropsWithoutConnection(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPortSink(log.New(&buf))
	assert.False(t, p.Connected())
	require.NoError(t, p.NoteOn(0, 60, 100))
	assert.Contains(t, buf.String(), "no MIDI output connected")

	var sent []midi.Message
	p.ConnectFunc("test", func(m midi.Message) error {
		sent = append(sent, m)
		return nil
	})
	require.NoError(t, p.NoteOn(0, 60, 100))
	require.NoError(t, p.NoteOff(0, 60))
	assert.Equal(t, []midi.Message{midi.NoteOn(0, 60, 100), midi.NoteOff(0, 60)}, sent)

	p.Disconnect()
	assert.False(t, p.Connected())
}

type failingSink struct{ err error }

func (f failingSink) NoteOn(uint8, uint8, uint8) error { return f.err }
func (f failingSink) NoteOff(uint8, uint8) error       { return f.err }

func TestMultiSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	a, b := errors.New("a"), errors.New("b")
	rec := &recordingSink{}
	err := MultiSink{failingSink{a}, rec, failingSink{b}}.NoteOn(0, 60, 1)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
	assert.Equal(t, []string{"on 0 60 1"}, rec.calls())
}
