package miditools

import (
	"errors"

	"github.com/JeanRibes/miditools/music"
)

// Constructor builds an Event from the raw bytes of a device callback.
type Constructor func(s *Session, timestamp int64, status, data1, data2 uint8) Event

// Handler is called for every constructed event. Handlers run with the
// session locked and must not call back into locking Session methods.
type Handler func(s *Session, ev Event) error

// ChordHandler receives every finalized note or chord.
type ChordHandler func(s *Session, el music.Element) error

// Registry holds the extension points of a Session. General handlers run in
// order; the first error stops the remaining ones and is returned to the caller.
type Registry struct {
	Constructor  Constructor
	General      []Handler
	SendOutChord ChordHandler
}

// DefaultRegistry forwards notes to the sink, quantizes the last emitted
// element and gathers note-ons into chords. Finalized elements are dropped.
func DefaultRegistry() *Registry {
	return &Registry{
		Constructor: DefaultConstructor,
		General:     []Handler{SendToSink, QuantizeLast, CollectChord},
	}
}

func DefaultConstructor(s *Session, timestamp int64, status, data1, data2 uint8) Event {
	return NewEvent(timestamp, status, data1, data2, s.transpose)
}

// KeySignatureConstructor bends incoming notes into ks before transposing them.
func KeySignatureConstructor(ks KeySignature) Constructor {
	return func(s *Session, timestamp int64, status, data1, data2 uint8) Event {
		ev := NewEvent(timestamp, status, data1, data2, s.transpose)
		if ev.HasNote() {
			ev.Data1 = uint8(ks.Alter(int(data1)))
		}
		return ev
	}
}

// SendToSink forwards note-on and note-off events on the session's output channel.
func SendToSink(s *Session, ev Event) error {
	if s.sink == nil || !ev.HasNote() {
		return nil
	}
	key, _ := ev.NoteNumber()
	if key < 0 || key > 127 {
		s.logger.Debug("not forwarding out of range note", "key", key)
		return nil
	}
	if ev.IsNoteOn() {
		return s.sink.NoteOn(s.channel, uint8(key), ev.Data2)
	}
	return s.sink.NoteOff(s.channel, uint8(key))
}

// QuantizeLast refreshes the length of the last emitted element when a
// note-on arrives, measured from its emission. The reference only moves when
// the next element is emitted, so note-offs and chord members leave it alone.
func QuantizeLast(s *Session, ev Event) error {
	if !ev.IsNoteOn() {
		return nil
	}
	s.quantizer.Measure(s.last, s.nowMS())
	return nil
}

// CollectChord hands note-ons to the aggregator. Out of range notes are logged and skipped.
func CollectChord(s *Session, ev Event) error {
	if !ev.IsNoteOn() {
		return nil
	}
	n, err := ev.ToNote()
	if errors.Is(err, ErrNoteOutOfRange) {
		s.logger.Warn("ignoring note", "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	if !s.aggregator.Add(n, s.clock.Now()) {
		s.logger.Debug("duplicate pitch in chord window", "pitch", n.Pitch)
	}
	return nil
}
