// Package capture records what a session hears and writes it to standard MIDI files.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/music"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

const TICKS = smf.MetricTicks(960)

const defaultVelocity = 64

var ErrNoTracks = errors.New("no tracks in file")

// Recorder keeps two views of a performance: the raw note events as they were
// played and the notes and chords the session emitted.
type Recorder struct {
	mu          sync.Mutex
	tempo       float64
	performance smf.Track
	recording   bool
	lastMS      int64
	elements    []music.Element
	logger      *log.Logger
}

func NewRecorder(tempo float64, logger *log.Logger) *Recorder {
	if tempo <= 0 {
		tempo = miditools.DefaultTempo
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Recorder{tempo: tempo, logger: logger.WithPrefix("capture")}
	r.Reset()
	return r
}

func (r *Recorder) Tempo() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tempo
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.performance = smf.Track{}
	r.performance.Add(0, smf.MetaTempo(r.tempo))
	r.recording = false
	r.lastMS = 0
	r.elements = nil
}

// Record appends a note event. Timing starts at the first note.
func (r *Recorder) Record(ev miditools.Event) {
	if !ev.HasNote() {
		return
	}
	key, _ := ev.NoteNumber()
	if key < 0 || key > 127 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		r.recording = true
		r.lastMS = ev.Timestamp
		r.logger.Debug("recording started")
	}
	deltams := ev.Timestamp - r.lastMS
	if deltams < 0 {
		deltams = 0
	}
	r.lastMS = ev.Timestamp
	delta := TICKS.Ticks(r.tempo, time.Duration(deltams)*time.Millisecond)
	r.performance.Add(delta, ev.Message())
}

// Collect keeps an emitted element. Its duration is read when the file is
// written, so later quantization is taken into account.
func (r *Recorder) Collect(el music.Element) {
	if el == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements = append(r.elements, el)
}

// Handler records every event a session handles.
func (r *Recorder) Handler() miditools.Handler {
	return func(_ *miditools.Session, ev miditools.Event) error {
		r.Record(ev)
		return nil
	}
}

// ChordHandler collects emitted elements before passing them on to next, if any.
func (r *Recorder) ChordHandler(next miditools.ChordHandler) miditools.ChordHandler {
	return func(s *miditools.Session, el music.Element) error {
		r.Collect(el)
		if next == nil {
			return nil
		}
		return next(s, el)
	}
}

func (r *Recorder) Elements() []music.Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]music.Element, len(r.elements))
	copy(out, r.elements)
	return out
}

// Performance is a closed copy of the raw track.
func (r *Recorder) Performance() smf.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr := make(smf.Track, len(r.performance))
	copy(tr, r.performance)
	tr.Close(0)
	return tr
}

// Notation renders the emitted elements one after the other. Rests become gaps.
func (r *Recorder) Notation() smf.Track {
	elements := r.Elements()

	tr := smf.Track{}
	tr.Add(0, smf.MetaTempo(r.Tempo()))
	var gap uint32
	for _, el := range elements {
		length := quarterTicks(el.QuarterLength(), TICKS)
		pitches := el.Pitches()
		if len(pitches) == 0 {
			gap += length
			continue
		}
		vel := velocity(el)
		for i, p := range pitches {
			var delta uint32
			if i == 0 {
				delta = gap
			}
			tr.Add(delta, midi.NoteOn(0, uint8(p.MIDI), vel))
		}
		for i, p := range pitches {
			var delta uint32
			if i == 0 {
				delta = length
			}
			tr.Add(delta, midi.NoteOff(0, uint8(p.MIDI)))
		}
		gap = 0
	}
	tr.Close(gap)
	return tr
}

func velocity(el music.Element) uint8 {
	var v int
	switch e := el.(type) {
	case *music.Note:
		v = e.Velocity
	case *music.Chord:
		v = e.Velocity
	}
	if v <= 0 || v > 127 {
		return defaultVelocity
	}
	return uint8(v)
}

// SMF builds a two-track file: the performance, then the notation.
func (r *Recorder) SMF() (*smf.SMF, error) {
	f := smf.New()
	f.TimeFormat = TICKS
	var errs error
	if err := f.Add(r.Performance()); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := f.Add(r.Notation()); err != nil {
		errs = errors.Join(errs, err)
	}
	return f, errs
}

func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	f, err := r.SMF()
	if err != nil {
		return 0, err
	}
	return f.WriteTo(w)
}

func (r *Recorder) SaveToFile(path string) (errs error) {
	f, err := r.SMF()
	if err != nil {
		errs = errors.Join(errs, err)
	}
	if err := f.WriteFile(path); err != nil {
		errs = errors.Join(errs, err)
	}
	if errs == nil {
		r.logger.Info("saved", "path", path)
	}
	return errs
}

// Quantized runs the performance through the quantizer and returns the result.
func (r *Recorder) Quantized() (*smf.SMF, error) {
	f := smf.New()
	f.TimeFormat = TICKS
	if err := f.Add(r.Performance()); err != nil {
		return nil, err
	}
	var in, out bytes.Buffer
	if _, err := f.WriteTo(&in); err != nil {
		return nil, err
	}
	if err := quantizer.Quantize(&in, &out); err != nil {
		return nil, fmt.Errorf("quantize: %w", err)
	}
	return smf.ReadFrom(&out)
}

// Melody is a one-track file holding the performance reduced to one note at
// a time. See Monophonic for cut.
func (r *Recorder) Melody(cut bool) (*smf.SMF, error) {
	tr := smf.Track{}
	tr.Add(0, smf.MetaTempo(r.Tempo()))
	tr = append(tr, Track(Monophonic(Takes(r.Performance()), cut))...)
	tr.Close(0)

	f := smf.New()
	f.TimeFormat = TICKS
	if err := f.Add(tr); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFromFile replaces the recording with the first track of path. Its
// notes also become the collected elements.
func (r *Recorder) LoadFromFile(path string) error {
	f, err := smf.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return r.load(f)
}

func (r *Recorder) load(f *smf.SMF) error {
	if len(f.Tracks) < 1 {
		return ErrNoTracks
	}
	ticks, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok {
		return fmt.Errorf("unsupported time format %v", f.TimeFormat)
	}

	tempo := r.tempo
	for _, ev := range f.Tracks[0] {
		if ev.Message.GetMetaTempo(&tempo) {
			break
		}
	}
	takes := Takes(f.Tracks[0])

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tempo = tempo
	r.performance = smf.Track{}
	r.performance.Add(0, smf.MetaTempo(tempo))
	r.performance = append(r.performance, Track(rescale(takes, ticks))...)
	r.recording = false
	r.lastMS = 0
	r.elements = make([]music.Element, 0, len(takes))
	for _, t := range takes {
		r.elements = append(r.elements, t.Note(ticks))
	}
	return nil
}

// rescale converts takes from the resolution of a file to TICKS.
func rescale(takes []Take, from smf.MetricTicks) []Take {
	if from == TICKS || from == 0 {
		return takes
	}
	out := make([]Take, len(takes))
	for i, t := range takes {
		t.Start = uint32(uint64(t.Start) * uint64(TICKS) / uint64(from))
		t.Duration = uint32(uint64(t.Duration) * uint64(TICKS) / uint64(from))
		out[i] = t
	}
	return out
}
