package miditools

import (
	"context"
	"sync"
	"time"

	"github.com/JeanRibes/miditools/music"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"k8s.io/utils/clock"
)

// Session holds everything needed to turn raw MIDI input into notes and chords.
type Session struct {
	mu sync.Mutex

	transpose int
	channel   uint8
	tempo     TempoSource
	clock     clock.WithTicker
	sink      Sink
	registry  *Registry
	logger    *log.Logger

	aggregator *Aggregator
	quantizer  *Quantizer
	last       music.Element

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Session)

func WithMaxDelay(d time.Duration) Option {
	return func(s *Session) { s.aggregator = NewAggregator(d) }
}

// WithTranspose shifts incoming notes by whole octaves.
func WithTranspose(octaves int) Option {
	return func(s *Session) { s.transpose = octaves }
}

// WithChannel sets the channel used when forwarding notes to the sink.
func WithChannel(ch uint8) Option {
	return func(s *Session) { s.channel = ch & 0x0F }
}

func WithTempo(t TempoSource) Option {
	return func(s *Session) { s.tempo = t }
}

func WithClock(c clock.WithTicker) Option {
	return func(s *Session) { s.clock = c }
}

func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithRegistry(r *Registry) Option {
	return func(s *Session) { s.registry = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		tempo:    FixedTempo(DefaultTempo),
		clock:    clock.RealClock{},
		registry: DefaultRegistry(),
		logger:   log.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.aggregator == nil {
		s.aggregator = NewAggregator(DefaultMaxDelay)
	}
	if s.registry.Constructor == nil {
		s.registry.Constructor = DefaultConstructor
	}
	s.logger = s.logger.WithPrefix("session")
	s.quantizer = NewQuantizer(s.tempo, s.nowMS())
	return s
}

func (s *Session) nowMS() int64 { return s.clock.Now().UnixMilli() }

// Handle processes one raw MIDI message. Unsupported status bytes go through
// the handlers as non-note events.
func (s *Session) Handle(timestamp int64, status, data1, data2 uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.tempo.(clockFollower); ok {
		switch status {
		case statusTimingClock:
			f.Pulse(s.clock.Now())
		case statusStart, statusStop:
			f.Reset()
		}
	}

	ev := s.registry.Constructor(s, timestamp, status, data1, data2)
	for _, h := range s.registry.General {
		if err := h(s, ev); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage is Handle for messages decoded by gomidi.
func (s *Session) HandleMessage(msg midi.Message, timestamp int64) error {
	var status, data1, data2 uint8
	if len(msg) > 0 {
		status = msg[0]
	}
	if len(msg) > 1 {
		data1 = msg[1]
	}
	if len(msg) > 2 {
		data2 = msg[2]
	}
	return s.Handle(timestamp, status, data1, data2)
}

// Tick closes the chord window if it has expired and emits the result.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(s.aggregator.Tick(s.clock.Now()))
}

// Flush emits whatever is held, without waiting for the window to expire.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit(s.aggregator.Flush())
}

func (s *Session) emit(el music.Element) error {
	if el == nil {
		return nil
	}
	// the previous element lasts until this one is emitted
	now := s.nowMS()
	s.quantizer.Fix(s.last, now)
	s.quantizer.Mark(now)
	s.quantizer.Measure(el, now)
	s.last = el
	s.logger.Debug("emit", "element", el, "ql", el.QuarterLength())
	if s.registry.SendOutChord == nil {
		return nil
	}
	return s.registry.SendOutChord(s, el)
}

// Start runs the aggregation ticker until ctx is done or Stop is called.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	ticker := s.clock.NewTicker(s.aggregator.MaxDelay())
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if err := s.Tick(); err != nil {
					s.logger.Error("send out chord", "err", err)
				}
			}
		}
	}()
}

// Stop ends the ticker started by Start and waits for it. Calling it twice is fine.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// LastEmitted is the last note or chord produced, nil before the first one.
func (s *Session) LastEmitted() music.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) Tempo() float64 { return s.tempo.Tempo() }

func (s *Session) MaxDelay() time.Duration { return s.aggregator.MaxDelay() }

// Pending returns the notes of the open chord window.
func (s *Session) Pending() []*music.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregator.Pending()
}
