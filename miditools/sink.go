package miditools

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Sink receives the note-on and note-off signals meant for an audio engine.
type Sink interface {
	NoteOn(channel, key, velocity uint8) error
	NoteOff(channel, key uint8) error
}

// PortSink forwards notes to a MIDI output port. Without a connection,
// notes are dropped with a warning.
type PortSink struct {
	mu     sync.Mutex
	send   func(midi.Message) error
	name   string
	logger *log.Logger
}

func NewPortSink(logger *log.Logger) *PortSink {
	if logger == nil {
		logger = log.Default()
	}
	return &PortSink{logger: logger.WithPrefix("sink")}
}

// Connect opens out for sending.
func (p *PortSink) Connect(out drivers.Out) error {
	send, err := midi.SendTo(out)
	if err != nil {
		return err
	}
	p.ConnectFunc(out.String(), send)
	return nil
}

// ConnectFunc uses send as the output.
func (p *PortSink) ConnectFunc(name string, send func(midi.Message) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	p.send = send
	p.logger.Info("connected", "output", name)
}

func (p *PortSink) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send = nil
	p.name = ""
}

func (p *PortSink) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send != nil
}

func (p *PortSink) NoteOn(channel, key, velocity uint8) error {
	return p.forward(midi.NoteOn(channel, key, velocity))
}

func (p *PortSink) NoteOff(channel, key uint8) error {
	return p.forward(midi.NoteOff(channel, key))
}

func (p *PortSink) forward(msg midi.Message) error {
	p.mu.Lock()
	send := p.send
	p.mu.Unlock()
	if send == nil {
		p.logger.Warn("no MIDI output connected, dropping", "msg", msg.String())
		return nil
	}
	return send(msg)
}

// SynthSink plays notes on a soundfont synthesizer. Hosts pull audio with Render.
type SynthSink struct {
	mu         sync.Mutex
	synth      *meltysynth.Synthesizer
	sampleRate int32
	left       []float32
	right      []float32
}

func NewSynthSink(sf *meltysynth.SoundFont, sampleRate int32) (*SynthSink, error) {
	settings := meltysynth.NewSynthesizerSettings(sampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, err
	}
	return &SynthSink{synth: synth, sampleRate: sampleRate}, nil
}

func (s *SynthSink) NoteOn(channel, key, velocity uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.NoteOn(int32(channel), int32(key), int32(velocity))
	return nil
}

func (s *SynthSink) NoteOff(channel, key uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.NoteOff(int32(channel), int32(key))
	return nil
}

// Render fills left and right with the next block of samples.
func (s *SynthSink) Render(left, right []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.Render(left, right)
}

func (s *SynthSink) SampleRate() int32 { return s.sampleRate }

// Read renders the next len(p)/4 frames as interleaved 16-bit little-endian
// stereo PCM.
func (s *SynthSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := len(p) / 4
	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	left, right := s.left[:frames], s.right[:frames]
	s.synth.Render(left, right)
	for i := range frames {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(pcm(left[i])))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(pcm(right[i])))
	}
	return frames * 4, nil
}

func pcm(v float32) int16 {
	return int16(max(-1, min(1, v)) * 32767)
}

// SwapSink forwards to a sink that can be replaced while notes flow, such as
// a synthesizer whose soundfont changes. It drops signals while empty.
type SwapSink struct {
	current atomic.Pointer[Sink]
}

func (w *SwapSink) Swap(sink Sink) {
	if sink == nil {
		w.current.Store(nil)
		return
	}
	w.current.Store(&sink)
}

func (w *SwapSink) NoteOn(channel, key, velocity uint8) error {
	if s := w.current.Load(); s != nil {
		return (*s).NoteOn(channel, key, velocity)
	}
	return nil
}

func (w *SwapSink) NoteOff(channel, key uint8) error {
	if s := w.current.Load(); s != nil {
		return (*s).NoteOff(channel, key)
	}
	return nil
}

// Read renders from the current sink when it produces audio and gives
// silence otherwise.
func (w *SwapSink) Read(p []byte) (int, error) {
	if s := w.current.Load(); s != nil {
		if r, ok := (*s).(io.Reader); ok {
			return r.Read(p)
		}
	}
	clear(p)
	return len(p), nil
}

// MultiSink sends every signal to each sink, joining their errors.
type MultiSink []Sink

func (m MultiSink) NoteOn(channel, key, velocity uint8) error {
	var errs error
	for _, s := range m {
		errs = errors.Join(errs, s.NoteOn(channel, key, velocity))
	}
	return errs
}

func (m MultiSink) NoteOff(channel, key uint8) error {
	var errs error
	for _, s := range m {
		errs = errors.Join(errs, s.NoteOff(channel, key))
	}
	return errs
}

type queued struct {
	on                     bool
	channel, key, velocity uint8
}

// ScheduledSink hands signals to a goroutine so that input callbacks never
// wait on a slow output. Errors are logged.
type ScheduledSink struct {
	ctx   context.Context
	queue chan queued
}

func NewScheduledSink(ctx context.Context, sink Sink, size int, logger *log.Logger) *ScheduledSink {
	if logger == nil {
		logger = log.Default()
	}
	s := &ScheduledSink{ctx: ctx, queue: make(chan queued, size)}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-s.queue:
				var err error
				if q.on {
					err = sink.NoteOn(q.channel, q.key, q.velocity)
				} else {
					err = sink.NoteOff(q.channel, q.key)
				}
				if err != nil {
					logger.Error("send", "err", err)
				}
			}
		}
	}()
	return s
}

func (s *ScheduledSink) NoteOn(channel, key, velocity uint8) error {
	return s.push(queued{on: true, channel: channel, key: key, velocity: velocity})
}

func (s *ScheduledSink) NoteOff(channel, key uint8) error {
	return s.push(queued{channel: channel, key: key})
}

func (s *ScheduledSink) push(q queued) error {
	select {
	case s.queue <- q:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
