package music

import "github.com/JeanRibes/miditools/base"

var (
	expressionClass     = base.ClassName{Short: "Expression", Qualified: "music21.expressions.Expression"}
	fermataClass        = base.ClassName{Short: "Fermata", Qualified: "music21.expressions.Fermata"}
	trillClass          = base.ClassName{Short: "Trill", Qualified: "music21.expressions.Trill"}
	textExpressionClass = base.ClassName{Short: "TextExpression", Qualified: "music21.expressions.TextExpression"}
)

// Expression is a marking attached to a note, chord or rest.
type Expression interface {
	base.Object
	Name() string
	attach(target base.Object)
}

// ExpressionBase is embedded by every expression. Target points back at the
// element the expression is attached to.
type ExpressionBase struct {
	Music21Object
	Target base.Object
}

func (e *ExpressionBase) Ancestry() []base.ClassName {
	return extend(expressionClass, e.Music21Object.Ancestry())
}

func (e *ExpressionBase) attach(target base.Object) { e.Target = target }

type Fermata struct {
	ExpressionBase
	Shape string
}

func NewFermata() *Fermata {
	f := &Fermata{Shape: "normal"}
	f.Music21Object = newMusic21Object()
	return f
}

func (f *Fermata) Ancestry() []base.ClassName {
	return extend(fermataClass, f.ExpressionBase.Ancestry())
}

func (f *Fermata) Name() string { return "fermata" }

type Trill struct {
	ExpressionBase
	Accidental string
}

func NewTrill() *Trill {
	t := &Trill{}
	t.Music21Object = newMusic21Object()
	return t
}

func (t *Trill) Ancestry() []base.ClassName {
	return extend(trillClass, t.ExpressionBase.Ancestry())
}

func (t *Trill) Name() string { return "trill" }

// TextExpression is free text placed above or below the staff.
type TextExpression struct {
	ExpressionBase
	Content string
}

func NewTextExpression(content string) *TextExpression {
	t := &TextExpression{Content: content}
	t.Music21Object = newMusic21Object()
	return t
}

func (t *TextExpression) Ancestry() []base.ClassName {
	return extend(textExpressionClass, t.ExpressionBase.Ancestry())
}

func (t *TextExpression) Name() string { return t.Content }
