package music

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

var stepNames = [12]string{"C", "C#", "D", "E-", "E", "F", "F#", "G", "G#", "A", "B-", "B"}

// Pitch is a MIDI note number; middle C (60) is C4.
type Pitch struct {
	MIDI int
}

// Name is the pitch class name, e.g. "C#".
func (p Pitch) Name() string {
	return stepNames[((p.MIDI%12)+12)%12]
}

func (p Pitch) Octave() int {
	if p.MIDI < 0 {
		return (p.MIDI+1)/12 - 2
	}
	return p.MIDI/12 - 1
}

// NameWithOctave is e.g. "C4".
func (p Pitch) NameWithOctave() string {
	return fmt.Sprintf("%s%d", p.Name(), p.Octave())
}

// Valid reports whether the pitch fits in a MIDI data byte.
func (p Pitch) Valid() bool {
	return p.MIDI >= 0 && p.MIDI <= 127
}

// Key converts to a gomidi note. The pitch must be Valid.
func (p Pitch) Key() midi.Note {
	return midi.Note(uint8(p.MIDI))
}

func (p Pitch) String() string { return p.NameWithOctave() }
