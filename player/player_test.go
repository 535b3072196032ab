package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/JeanRibes/miditools/shared"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	testingclock "k8s.io/utils/clock/testing"
)

type recorder struct {
	mu       sync.Mutex
	calls    []string
	progress []Progress
}

func (r *recorder) NoteOn(ch, key, vel uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("on %d %d", ch, key))
	return nil
}

func (r *recorder) NoteOff(ch, key uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("off %d %d", ch, key))
	return nil
}

func (r *recorder) onProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) lastProgress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.progress) == 0 {
		return Progress{}
	}
	return r.progress[len(r.progress)-1]
}

// two quarter notes at 60 bpm: C4 then E4, two seconds in total
func twoNotes() *smf.SMF {
	f := smf.New()
	f.TimeFormat = smf.MetricTicks(960)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(60))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(960, midi.NoteOff(0, 64))
	tr.Close(0)
	f.Add(tr)
	return f
}

func newTestPlayer(t *testing.T) (*Player, *recorder, *testingclock.FakeClock) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	rec := &recorder{}
	p := New(rec, WithClock(clk), WithFPS(10), WithProgress(rec.onProgress), WithLogger(log.New(io.Discard)))
	require.NoError(t, p.Load(twoNotes()))
	return p, rec, clk
}

func TestLoad(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPlayer(t)
	assert.Equal(t, Progress{Total: 2 * time.Second}, p.Progress())
	assert.InDelta(t, 60.0, p.Tempo(), 1e-6)
}

func TestLoadFollowsTempoChanges(t *testing.T) {
	t.Parallel()

	// a quarter at 60 bpm then a quarter at 120 bpm
	f := smf.New()
	f.TimeFormat = smf.MetricTicks(960)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(60))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(960, midi.NoteOff(0, 64))
	tr.Close(0)
	require.NoError(t, f.Add(tr))

	p := New(&recorder{}, WithLogger(log.New(io.Discard)))
	require.NoError(t, p.Load(f))
	assert.Equal(t, 1500*time.Millisecond, p.Progress().Total)
	assert.InDelta(t, 60.0, p.Tempo(), 1e-6)

	// the same file read back from bytes agrees
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, p.LoadFrom(&buf))
	assert.Equal(t, 1500*time.Millisecond, p.Progress().Total)
}

func TestPlayPause(t *testing.T) {
	t.Parallel()

	p, rec, clk := newTestPlayer(t)
	p.Play(context.Background())
	assert.True(t, p.Progress().Playing)

	clk.Step(1100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.sent()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"on 0 60", "off 0 60", "on 0 64"}, rec.sent())

	p.Pause()
	assert.Equal(t, []string{"on 0 60", "off 0 60", "on 0 64", "off 0 64"}, rec.sent())
	assert.Equal(t, Progress{Current: 1100 * time.Millisecond, Total: 2 * time.Second}, p.Progress())
	assert.False(t, rec.lastProgress().Playing)
}

func TestPlayToEnd(t *testing.T) {
	t.Parallel()

	p, rec, clk := newTestPlayer(t)
	p.Play(context.Background())
	clk.Step(3 * time.Second)

	require.Eventually(t, func() bool {
		pr := rec.lastProgress()
		return !pr.Playing && pr.Current == pr.Total
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.sent(), 4)

	// playing again starts over
	p.Play(context.Background())
	assert.Equal(t, time.Duration(0), p.Progress().Current)
	p.Stop()
}

func TestSeekAndStop(t *testing.T) {
	t.Parallel()

	p, rec, _ := newTestPlayer(t)
	p.Seek(0.5)
	assert.Equal(t, time.Second, p.Progress().Current)
	assert.Equal(t, 0.5, rec.lastProgress().Fraction())

	p.SeekBy(-0.75)
	assert.Equal(t, time.Duration(0), p.Progress().Current)
	p.SeekBy(2)
	assert.Equal(t, 2*time.Second, p.Progress().Current)

	p.Stop()
	assert.Equal(t, Progress{Total: 2 * time.Second}, p.Progress())
}

func TestToggle(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPlayer(t)
	p.Toggle(context.Background())
	assert.True(t, p.Progress().Playing)
	p.Toggle(context.Background())
	assert.False(t, p.Progress().Playing)
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0:00", FormatTime(0))
	assert.Equal(t, "0:00", FormatTime(-time.Second))
	assert.Equal(t, "1:05", FormatTime(65*time.Second))
	assert.Equal(t, "2:03", FormatTime(2*time.Minute+3900*time.Millisecond))
}

func TestHandleAndUpdates(t *testing.T) {
	t.Parallel()

	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	ch := make(chan shared.Message, 1)
	p := New(&recorder{}, WithClock(clk), WithProgress(Updates(ch)), WithLogger(log.New(io.Discard)))
	require.NoError(t, p.Load(twoNotes()))
	<-ch

	p.Handle(context.Background(), shared.Message{Type: shared.Seek, Fraction: 0.25})
	msg := <-ch
	assert.Equal(t, shared.Progress, msg.Type)
	assert.Equal(t, 500*time.Millisecond, msg.Current)
	assert.Equal(t, 0.25, msg.Fraction)

	p.Handle(context.Background(), shared.Message{Type: shared.PlayPause})
	assert.True(t, p.Progress().Playing)
	<-ch
	p.Handle(context.Background(), shared.Message{Type: shared.Stop})
	assert.Equal(t, Progress{Total: 2 * time.Second}, p.Progress())
}
