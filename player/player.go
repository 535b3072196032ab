// Package player plays standard MIDI files into a sink and reports progress
// for a transport widget.
package player

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/shared"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2/smf"
	"k8s.io/utils/clock"
)

const (
	DefaultFPS = 25
	// tempo of a file without a tempo event
	defaultFileTempo = 120.0
)

// Progress is what a transport widget needs to draw itself.
type Progress struct {
	Current time.Duration
	Total   time.Duration
	Playing bool
}

// Fraction is the played share of the file, from 0 to 1.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

type noteEvent struct {
	at       time.Duration
	on       bool
	channel  uint8
	key      uint8
	velocity uint8
}

type sounding struct{ channel, key uint8 }

type Player struct {
	mu       sync.Mutex
	events   []noteEvent
	total    time.Duration
	tempo    float64
	pos      time.Duration
	next     int
	playing  bool
	sounding map[sounding]struct{}
	last     time.Time

	sink       miditools.Sink
	clock      clock.WithTicker
	fps        int
	onProgress func(Progress)
	logger     *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Player)

func WithClock(c clock.WithTicker) Option {
	return func(p *Player) { p.clock = c }
}

// WithFPS sets how many times per second events are dispatched and progress reported.
func WithFPS(fps int) Option {
	return func(p *Player) { p.fps = fps }
}

// WithProgress registers the animation callback. It is called without the player locked.
func WithProgress(fn func(Progress)) Option {
	return func(p *Player) { p.onProgress = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Player) { p.logger = l }
}

func New(sink miditools.Sink, opts ...Option) *Player {
	p := &Player{
		sink:     sink,
		clock:    clock.RealClock{},
		fps:      DefaultFPS,
		tempo:    defaultFileTempo,
		sounding: map[sounding]struct{}{},
		logger:   log.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.fps <= 0 {
		p.fps = DefaultFPS
	}
	p.logger = p.logger.WithPrefix("player")
	return p
}

func (p *Player) LoadFile(path string) error {
	f, err := smf.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return p.Load(f)
}

func (p *Player) LoadFrom(r io.Reader) error {
	f, err := smf.ReadFrom(r)
	if err != nil {
		return err
	}
	return p.Load(f)
}

// Load replaces the current file. Playback is stopped first.
func (p *Player) Load(f *smf.SMF) error {
	if f.NumTracks() == 0 {
		return fmt.Errorf("no tracks in file")
	}
	events, tempo := flatten(f)
	p.Stop()

	p.mu.Lock()
	p.events = events
	p.tempo = tempo
	p.total = 0
	if len(events) > 0 {
		p.total = events[len(events)-1].at
	}
	p.pos = 0
	p.next = 0
	pr := p.progressLocked()
	p.mu.Unlock()
	p.report(pr)

	p.logger.Info("loaded", "events", len(events), "length", FormatTime(p.total), "tempo", tempo)
	return nil
}

// flatten merges every track into one list of note events at absolute times.
func flatten(f *smf.SMF) ([]noteEvent, float64) {
	clock := clockFor(f)
	var (
		events       []noteEvent
		ch, key, vel uint8
	)
	for _, track := range f.Tracks {
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				events = append(events, noteEvent{at: clock(absTicks), on: true, channel: ch, key: key, velocity: vel})
			case ev.Message.GetNoteOff(&ch, &key, &vel):
				events = append(events, noteEvent{at: clock(absTicks), channel: ch, key: key})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return !events[i].on && events[j].on
	})
	return events, firstTempo(f)
}

type tempoChange struct {
	at  int64 // ticks
	bpm float64
}

// tempoChanges collects the tempo events of every track in time order.
func tempoChanges(f *smf.SMF) []tempoChange {
	var changes []tempoChange
	for _, track := range f.Tracks {
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				changes = append(changes, tempoChange{at: absTicks, bpm: bpm})
			}
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].at < changes[j].at })
	return changes
}

func firstTempo(f *smf.SMF) float64 {
	if changes := tempoChanges(f); len(changes) > 0 {
		return changes[0].bpm
	}
	return defaultFileTempo
}

// clockFor converts absolute ticks to time using the tempo events of f
// itself, so files built in memory play at their own tempo. Other time
// formats are left to the smf package.
func clockFor(f *smf.SMF) func(ticks int64) time.Duration {
	mt, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok || mt.Ticks4th() == 0 {
		return func(ticks int64) time.Duration {
			return time.Duration(f.TimeAt(ticks)) * time.Microsecond
		}
	}
	perQuarter := float64(mt.Ticks4th())
	span := func(ticks int64, bpm float64) time.Duration {
		return time.Duration(float64(ticks) / perQuarter * 60 / bpm * float64(time.Second))
	}
	changes := tempoChanges(f)
	return func(ticks int64) time.Duration {
		var (
			at   time.Duration
			last int64
			bpm  = defaultFileTempo
		)
		for _, c := range changes {
			if c.at >= ticks {
				break
			}
			at += span(c.at-last, bpm)
			last, bpm = c.at, c.bpm
		}
		return at + span(ticks-last, bpm)
	}
}

// Tempo is the first tempo of the loaded file.
func (p *Player) Tempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

func (p *Player) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Player) progressLocked() Progress {
	return Progress{Current: p.pos, Total: p.total, Playing: p.playing}
}

func (p *Player) report(pr Progress) {
	if p.onProgress != nil {
		p.onProgress(pr)
	}
}

// Play starts or resumes playback. At the end of the file it starts over.
func (p *Player) Play(ctx context.Context) {
	p.mu.Lock()
	if p.playing || len(p.events) == 0 {
		p.mu.Unlock()
		return
	}
	if p.pos >= p.total {
		p.pos, p.next = 0, 0
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.playing = true
	p.last = p.clock.Now()
	ticker := p.clock.NewTicker(time.Second / time.Duration(p.fps))
	pr := p.progressLocked()
	p.mu.Unlock()

	p.report(pr)
	go p.run(ctx, ticker, done)
}

func (p *Player) run(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			pr, more := p.frame(now)
			p.report(pr)
			if !more {
				return
			}
		}
	}
}

// frame advances the position to now and sends what became due.
func (p *Player) frame(now time.Time) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.progressLocked(), false
	}
	if now.After(p.last) {
		p.pos += now.Sub(p.last)
	}
	p.last = now
	if p.pos > p.total {
		p.pos = p.total
	}
	p.dispatchLocked()

	if p.pos < p.total {
		return p.progressLocked(), true
	}
	p.playing = false
	p.silenceLocked()
	p.cancel()
	p.cancel, p.done = nil, nil
	p.logger.Debug("finished")
	return p.progressLocked(), false
}

func (p *Player) dispatchLocked() {
	for p.next < len(p.events) && p.events[p.next].at <= p.pos {
		ev := p.events[p.next]
		p.next++
		s := sounding{ev.channel, ev.key}
		var err error
		if ev.on {
			p.sounding[s] = struct{}{}
			err = p.sink.NoteOn(ev.channel, ev.key, ev.velocity)
		} else {
			delete(p.sounding, s)
			err = p.sink.NoteOff(ev.channel, ev.key)
		}
		if err != nil {
			p.logger.Error("send", "err", err)
		}
	}
}

func (p *Player) silenceLocked() {
	for s := range p.sounding {
		if err := p.sink.NoteOff(s.channel, s.key); err != nil {
			p.logger.Error("silence", "err", err)
		}
		delete(p.sounding, s)
	}
}

// halt stops the frame loop and waits for it.
func (p *Player) halt() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.playing = false
	p.silenceLocked()
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Pause keeps the position.
func (p *Player) Pause() {
	p.halt()
	p.report(p.Progress())
}

// Stop rewinds to the start.
func (p *Player) Stop() {
	p.halt()
	p.mu.Lock()
	p.pos, p.next = 0, 0
	pr := p.progressLocked()
	p.mu.Unlock()
	p.report(pr)
}

func (p *Player) Toggle(ctx context.Context) {
	if p.Progress().Playing {
		p.Pause()
		return
	}
	p.Play(ctx)
}

// Seek moves to fraction (0 to 1) of the file. Playback continues from there.
func (p *Player) Seek(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	p.mu.Lock()
	p.silenceLocked()
	p.pos = time.Duration(fraction * float64(p.total))
	p.next = sort.Search(len(p.events), func(i int) bool { return p.events[i].at >= p.pos })
	pr := p.progressLocked()
	p.mu.Unlock()
	p.report(pr)
}

// SeekBy moves by delta, a signed fraction of the file.
func (p *Player) SeekBy(delta float64) {
	p.Seek(p.Progress().Fraction() + delta)
}

// FormatTime renders d as m:ss.
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Handle applies a command sent by a widget.
func (p *Player) Handle(ctx context.Context, msg shared.Message) {
	switch msg.Type {
	case shared.PlayPause:
		p.Toggle(ctx)
	case shared.Stop:
		p.Stop()
	case shared.Seek:
		p.SeekBy(msg.Fraction)
	case shared.Quit:
		p.Pause()
	default:
		p.logger.Debug("ignored", "message", msg.Type)
	}
}

// Updates turns progress reports into messages on ch. Frames are dropped
// when ch is full.
func Updates(ch chan<- shared.Message) func(Progress) {
	return func(pr Progress) {
		msg := shared.Message{Type: shared.Progress, Boolean: pr.Playing, Fraction: pr.Fraction(), Current: pr.Current, Total: pr.Total}
		select {
		case ch <- msg:
		default:
		}
	}
}
