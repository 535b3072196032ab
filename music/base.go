// Package music is the object model for notated musical elements.
package music

import (
	"github.com/JeanRibes/miditools/base"
	"github.com/google/uuid"
)

var music21ObjectClass = base.ClassName{Short: "Music21Object", Qualified: "music21.base.Music21Object"}

// Music21Object carries what every placed element has: identity, position and duration.
type Music21Object struct {
	base.ProtoM21Object
	ID         string
	Offset     float64
	Duration   Duration
	Groups     []string
	ActiveSite base.Object
}

func newMusic21Object() Music21Object {
	return Music21Object{ID: uuid.NewString(), Duration: Duration{QuarterLength: 1}}
}

func (m *Music21Object) Ancestry() []base.ClassName {
	return []base.ClassName{music21ObjectClass, base.ProtoClass()}
}

// ClonePolicy gives deep copies a fresh ID and keeps the container shared.
func (m *Music21Object) ClonePolicy() base.Policy {
	return base.Policy{
		"ID": base.Custom(func(any, *base.Cloner) (any, error) {
			return uuid.NewString(), nil
		}),
		"ActiveSite": base.Reference(),
	}
}

func (m *Music21Object) Identifier() string { return m.ID }

func (m *Music21Object) QuarterLength() float64 { return m.Duration.QuarterLength }

func (m *Music21Object) SetQuarterLength(ql float64) { m.Duration.QuarterLength = ql }

// Element is a note-like entity that can be emitted from MIDI input.
type Element interface {
	base.Object
	Identifier() string
	QuarterLength() float64
	SetQuarterLength(ql float64)
	Pitches() []Pitch
}

// CloneElement deep-copies el.
func CloneElement(el Element) (Element, error) {
	return base.Clone(el, true)
}

func extend(c base.ClassName, parent []base.ClassName) []base.ClassName {
	return append([]base.ClassName{c}, parent...)
}
