// Package miditools turns raw MIDI input into notes and chords: events are
// decoded, near-simultaneous note-ons are gathered into chords, durations are
// quantized against a tempo and the result is handed to callbacks.
package miditools

import (
	"errors"
	"fmt"

	"github.com/JeanRibes/miditools/music"
	"gitlab.com/gomidi/midi/v2"
)

var (
	ErrNotANote       = errors.New("miditools: not a note event")
	ErrNoteOutOfRange = errors.New("miditools: note number out of range")
)

const (
	commandNoteOff = 0x8
	commandNoteOn  = 0x9

	statusTimingClock = 0xF8
	statusStart       = 0xFA
	statusStop        = 0xFC
)

// Event is one raw MIDI event as delivered by a device: a timestamp and up to
// three bytes. Transpose is the octave offset applied to note numbers.
type Event struct {
	Timestamp int64
	Status    uint8
	Data1     uint8
	Data2     uint8
	Transpose int
}

func NewEvent(timestamp int64, status, data1, data2 uint8, transpose int) Event {
	return Event{Timestamp: timestamp, Status: status, Data1: data1, Data2: data2, Transpose: transpose}
}

// EventFromMessage decodes a gomidi message.
func EventFromMessage(msg midi.Message, timestamp int64, transpose int) Event {
	b := msg.Bytes()
	ev := Event{Timestamp: timestamp, Transpose: transpose}
	if len(b) > 0 {
		ev.Status = b[0]
	}
	if len(b) > 1 {
		ev.Data1 = b[1]
	}
	if len(b) > 2 {
		ev.Data2 = b[2]
	}
	return ev
}

// Command is the top nibble of the status byte.
func (e Event) Command() uint8 { return e.Status >> 4 }

func (e Event) Channel() uint8 { return e.Status & 0x0F }

// HasNote reports whether the event carries a note number and velocity.
func (e Event) HasNote() bool {
	c := e.Command()
	return c == commandNoteOff || c == commandNoteOn
}

func (e Event) IsNoteOn() bool {
	return e.Command() == commandNoteOn && e.Data2 > 0
}

// IsNoteOff also holds for a note-on with velocity 0.
func (e Event) IsNoteOff() bool {
	c := e.Command()
	return c == commandNoteOff || (c == commandNoteOn && e.Data2 == 0)
}

// NoteNumber is the transposed note number. It may fall outside 0..127.
func (e Event) NoteNumber() (int, bool) {
	if !e.HasNote() {
		return 0, false
	}
	return int(e.Data1) + 12*e.Transpose, true
}

func (e Event) Velocity() (uint8, bool) {
	if !e.HasNote() {
		return 0, false
	}
	return e.Data2, true
}

// ToNote builds a quarter note for a note event.
func (e Event) ToNote() (*music.Note, error) {
	key, ok := e.NoteNumber()
	if !ok {
		return nil, ErrNotANote
	}
	if key < 0 || key > 127 {
		return nil, fmt.Errorf("%w: %d", ErrNoteOutOfRange, key)
	}
	n := music.NewNote(key)
	n.Velocity = int(e.Data2)
	return n, nil
}

// Message re-encodes the event with its transposed note number.
func (e Event) Message() midi.Message {
	if key, ok := e.NoteNumber(); ok && key >= 0 && key <= 127 {
		if e.IsNoteOn() {
			return midi.NoteOn(e.Channel(), uint8(key), e.Data2)
		}
		return midi.NoteOffVelocity(e.Channel(), uint8(key), e.Data2)
	}
	switch {
	case e.Status >= 0xF8:
		return midi.Message([]byte{e.Status})
	case e.Command() == 0xC || e.Command() == 0xD:
		return midi.Message([]byte{e.Status, e.Data1})
	}
	return midi.Message([]byte{e.Status, e.Data1, e.Data2})
}

func (e Event) String() string {
	switch {
	case e.IsNoteOn():
		key, _ := e.NoteNumber()
		return fmt.Sprintf("note on %d vel %d ch %d @%d", key, e.Data2, e.Channel(), e.Timestamp)
	case e.IsNoteOff():
		key, _ := e.NoteNumber()
		return fmt.Sprintf("note off %d ch %d @%d", key, e.Channel(), e.Timestamp)
	default:
		return fmt.Sprintf("status %#02x [%d %d] @%d", e.Status, e.Data1, e.Data2, e.Timestamp)
	}
}
