package music

import (
	"fmt"
	"strings"

	"github.com/JeanRibes/miditools/base"
)

var chordClass = base.ClassName{Short: "Chord", Qualified: "music21.chord.Chord"}

// Chord is several notes sounding together. Notes keep the order they were added in.
type Chord struct {
	NotRest
	Notes []*Note
}

// NewChord takes its duration and velocity from the first note.
func NewChord(notes ...*Note) *Chord {
	c := &Chord{}
	c.Music21Object = newMusic21Object()
	c.Notes = append(c.Notes, notes...)
	if len(notes) > 0 {
		c.Duration = notes[0].Duration
		c.Velocity = notes[0].Velocity
	}
	for _, n := range notes {
		n.ActiveSite = c
	}
	return c
}

func (c *Chord) Ancestry() []base.ClassName {
	return extend(chordClass, c.NotRest.Ancestry())
}

func (c *Chord) Pitches() []Pitch {
	out := make([]Pitch, 0, len(c.Notes))
	for _, n := range c.Notes {
		out = append(out, n.Pitch)
	}
	return out
}

// SetQuarterLength sets the chord and all its notes.
func (c *Chord) SetQuarterLength(ql float64) {
	c.Duration.QuarterLength = ql
	for _, n := range c.Notes {
		n.Duration.QuarterLength = ql
	}
}

func (c *Chord) AddExpression(e Expression) { c.addExpression(c, e) }

func (c *Chord) String() string {
	names := make([]string, 0, len(c.Notes))
	for _, p := range c.Pitches() {
		names = append(names, p.NameWithOctave())
	}
	return fmt.Sprintf("<Chord %s %s>", strings.Join(names, " "), c.Duration.Type())
}
