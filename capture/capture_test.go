package capture

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/music"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	testingclock "k8s.io/utils/clock/testing"
)

func quiet() *log.Logger { return log.New(io.Discard) }

func record(r *Recorder) {
	r.Record(miditools.NewEvent(1000, 0x90, 60, 100, 0))
	r.Record(miditools.NewEvent(2000, 0x80, 60, 0, 0))
	r.Record(miditools.NewEvent(2000, 0x90, 64, 90, 0))
	r.Record(miditools.NewEvent(2000, 0xB0, 64, 90, 0))
	r.Record(miditools.NewEvent(2500, 0x90, 64, 0, 0))
}

func TestTakes(t *testing.T) {
	t.Parallel()

	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOn(0, 60, 80))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 67, 70))
	tr.Close(960)

	assert.Equal(t, []Take{
		{Key: 60, Velocity: 100, Start: 0, Duration: 480},
		{Key: 60, Velocity: 80, Start: 480, Duration: 480},
		{Key: 67, Velocity: 70, Start: 960, Duration: 960},
	}, Takes(tr))
}

func TestTrackRoundTrip(t *testing.T) {
	t.Parallel()

	takes := []Take{
		{Key: 60, Velocity: 100, Start: 0, Duration: 960},
		{Key: 64, Velocity: 100, Start: 0, Duration: 480},
		{Key: 60, Velocity: 90, Start: 960, Duration: 240},
	}
	assert.Equal(t, takes, Takes(Track(takes)))
}

func TestTakeNote(t *testing.T) {
	t.Parallel()

	n := Take{Key: 62, Velocity: 77, Duration: 1440}.Note(TICKS)
	assert.Equal(t, 62, n.Pitch.MIDI)
	assert.Equal(t, 77, n.Velocity)
	assert.Equal(t, 1.5, n.QuarterLength())
}

func TestRecordPerformance(t *testing.T) {
	t.Parallel()

	r := NewRecorder(60, quiet())
	record(r)

	assert.Equal(t, []Take{
		{Key: 60, Velocity: 100, Start: 0, Duration: 960},
		{Key: 64, Velocity: 90, Start: 960, Duration: 480},
	}, Takes(r.Performance()))
}

func TestNotation(t *testing.T) {
	t.Parallel()

	r := NewRecorder(60, quiet())
	chord := music.NewChord(music.NewNote(60), music.NewNote(64), music.NewNote(67))
	r.Collect(chord)
	r.Collect(music.NewRest(0.5))
	high := music.NewNote(72)
	high.SetQuarterLength(2)
	r.Collect(high)
	r.Collect(nil)

	// durations fixed after collection are honoured
	chord.SetQuarterLength(1)

	assert.Equal(t, []Take{
		{Key: 60, Velocity: 64, Start: 0, Duration: 960},
		{Key: 64, Velocity: 64, Start: 0, Duration: 960},
		{Key: 67, Velocity: 64, Start: 0, Duration: 960},
		{Key: 72, Velocity: 64, Start: 1440, Duration: 1920},
	}, Takes(r.Notation()))
}

func TestWriteTo(t *testing.T) {
	t.Parallel()

	r := NewRecorder(60, quiet())
	record(r)
	r.Collect(music.NewNote(60))

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)

	f, err := smf.ReadFrom(&buf)
	require.NoError(t, err)
	require.Len(t, f.Tracks, 2)
	assert.Len(t, Takes(f.Tracks[0]), 2)
	assert.Len(t, Takes(f.Tracks[1]), 1)
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "take.mid")
	r := NewRecorder(60, quiet())
	record(r)
	require.NoError(t, r.SaveToFile(path))

	loaded := NewRecorder(120, quiet())
	require.NoError(t, loaded.LoadFromFile(path))
	assert.InDelta(t, 60.0, loaded.Tempo(), 1e-6)
	assert.Equal(t, Takes(r.Performance()), Takes(loaded.Performance()))

	els := loaded.Elements()
	require.Len(t, els, 2)
	assert.Equal(t, 1.0, els[0].QuarterLength())
	assert.Equal(t, 0.5, els[1].QuarterLength())

	assert.Error(t, loaded.LoadFromFile(filepath.Join(t.TempDir(), "missing.mid")))
}

func TestQuantized(t *testing.T) {
	t.Parallel()

	r := NewRecorder(60, quiet())
	record(r)
	f, err := r.Quantized()
	require.NoError(t, err)
	assert.NotEmpty(t, f.Tracks)
}

func TestRecorderOnSession(t *testing.T) {
	t.Parallel()

	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	r := NewRecorder(60, quiet())
	reg := miditools.DefaultRegistry()
	reg.General = append(reg.General, r.Handler())
	reg.SendOutChord = r.ChordHandler(nil)
	s := miditools.NewSession(miditools.WithClock(clk), miditools.WithRegistry(reg), miditools.WithLogger(quiet()))

	require.NoError(t, s.Handle(0, 0x90, 60, 100))
	require.NoError(t, s.Handle(20, 0x90, 64, 100))
	clk.Step(miditools.DefaultMaxDelay)
	require.NoError(t, s.Tick())

	els := r.Elements()
	require.Len(t, els, 1)
	assert.IsType(t, &music.Chord{}, els[0])
	assert.Len(t, Takes(r.Performance()), 2)
}

func TestMonophonic(t *testing.T) {
	t.Parallel()

	takes := []Take{
		{Key: 60, Velocity: 64, Start: 0, Duration: 960},
		{Key: 64, Velocity: 64, Start: 0, Duration: 960},
		{Key: 67, Velocity: 64, Start: 480, Duration: 960},
		{Key: 72, Velocity: 64, Start: 1920, Duration: 480},
	}

	assert.Equal(t, []Take{
		{Key: 60, Velocity: 64, Start: 0, Duration: 960},
		{Key: 72, Velocity: 64, Start: 1920, Duration: 480},
	}, Monophonic(takes, false))

	assert.Equal(t, []Take{
		{Key: 64, Velocity: 64, Start: 0, Duration: 480},
		{Key: 67, Velocity: 64, Start: 480, Duration: 960},
		{Key: 72, Velocity: 64, Start: 1920, Duration: 480},
	}, Monophonic(takes, true))

	assert.Empty(t, Monophonic(nil, true))
}

func TestMelody(t *testing.T) {
	t.Parallel()

	r := NewRecorder(60, quiet())
	r.Record(miditools.NewEvent(0, 0x90, 60, 100, 0))
	r.Record(miditools.NewEvent(0, 0x90, 64, 100, 0))
	r.Record(miditools.NewEvent(1000, 0x80, 60, 0, 0))
	r.Record(miditools.NewEvent(1000, 0x80, 64, 0, 0))

	f, err := r.Melody(false)
	require.NoError(t, err)
	require.Len(t, f.Tracks, 1)
	assert.Equal(t, []Take{{Key: 60, Velocity: 100, Start: 0, Duration: 960}}, Takes(f.Tracks[0]))

	var tempo float64
	assert.True(t, f.Tracks[0][0].Message.GetMetaTempo(&tempo))
	assert.InDelta(t, 60, tempo, 0.01)
}
