package music

import (
	"fmt"

	"github.com/JeanRibes/miditools/base"
)

var (
	generalNoteClass = base.ClassName{Short: "GeneralNote", Qualified: "music21.note.GeneralNote"}
	notRestClass     = base.ClassName{Short: "NotRest", Qualified: "music21.note.NotRest"}
	noteClass        = base.ClassName{Short: "Note", Qualified: "music21.note.Note"}
	restClass        = base.ClassName{Short: "Rest", Qualified: "music21.note.Rest"}
)

// GeneralNote is anything drawn with a note head or a rest sign.
type GeneralNote struct {
	Music21Object
	Expressions   []Expression
	Lyric         string
	StemDirection string
}

func (g *GeneralNote) Ancestry() []base.ClassName {
	return extend(generalNoteClass, g.Music21Object.Ancestry())
}

// addExpression attaches e to owner, the element embedding g.
func (g *GeneralNote) addExpression(owner base.Object, e Expression) {
	e.attach(owner)
	g.Expressions = append(g.Expressions, e)
}

// NotRest is a GeneralNote that sounds.
type NotRest struct {
	GeneralNote
	Velocity int
}

func (n *NotRest) Ancestry() []base.ClassName {
	return extend(notRestClass, n.GeneralNote.Ancestry())
}

type Note struct {
	NotRest
	Pitch Pitch
}

// NewNote returns a quarter note on the given MIDI pitch.
func NewNote(midiNumber int) *Note {
	n := &Note{Pitch: Pitch{MIDI: midiNumber}}
	n.Music21Object = newMusic21Object()
	n.Velocity = 64
	return n
}

func (n *Note) Ancestry() []base.ClassName {
	return extend(noteClass, n.NotRest.Ancestry())
}

func (n *Note) Pitches() []Pitch { return []Pitch{n.Pitch} }

func (n *Note) AddExpression(e Expression) { n.addExpression(n, e) }

func (n *Note) String() string {
	return fmt.Sprintf("<Note %s %s>", n.Pitch, n.Duration.Type())
}

type Rest struct {
	GeneralNote
}

func NewRest(quarterLength float64) *Rest {
	r := &Rest{}
	r.Music21Object = newMusic21Object()
	r.Duration.QuarterLength = quarterLength
	return r
}

func (r *Rest) Ancestry() []base.ClassName {
	return extend(restClass, r.GeneralNote.Ancestry())
}

func (r *Rest) Pitches() []Pitch { return nil }

func (r *Rest) AddExpression(e Expression) { r.addExpression(r, e) }

func (r *Rest) String() string {
	return fmt.Sprintf("<Rest %s>", r.Duration.Type())
}
