package miditools

import (
	"math"

	"github.com/JeanRibes/miditools/music"
)

// Quantize converts the milliseconds between prev and now into a quarter
// length at tempo (beats per minute). The value is rounded to the nearest
// sixteenth and snapped: >=4 gives 4, >=3 gives 3, >2 gives 2, 1.25 gives 1,
// 0.75 gives 0.5 and 0 gives 0.125.
func Quantize(now, prev int64, tempo float64) float64 {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	elapsed := float64(now - prev)
	if elapsed < 0 {
		elapsed = 0
	}
	ql := elapsed / (60000 / tempo)
	rounded := math.Round(ql*4) / 4

	switch {
	case rounded >= 4:
		return 4
	case rounded >= 3:
		return 3
	case rounded > 2:
		return 2
	case rounded == 1.25:
		return 1
	case rounded == 0.75:
		return 0.5
	case rounded == 0:
		return 0.125
	}
	return rounded
}

// Quantizer fixes element durations from the time elapsed since its previous call.
type Quantizer struct {
	prev  int64
	tempo TempoSource
}

func NewQuantizer(tempo TempoSource, start int64) *Quantizer {
	if tempo == nil {
		tempo = FixedTempo(DefaultTempo)
	}
	return &Quantizer{prev: start, tempo: tempo}
}

// Fix sets the quarter length of el and moves the reference time to now.
// A nil element is ignored and leaves the reference time alone.
func (q *Quantizer) Fix(el music.Element, now int64) music.Element {
	if el == nil {
		return nil
	}
	el.SetQuarterLength(Quantize(now, q.prev, q.tempo.Tempo()))
	if now > q.prev {
		q.prev = now
	}
	return el
}

// Measure sets the quarter length of el from the time since the reference
// without moving it. A nil element is ignored.
func (q *Quantizer) Measure(el music.Element, now int64) music.Element {
	if el == nil {
		return nil
	}
	el.SetQuarterLength(Quantize(now, q.prev, q.tempo.Tempo()))
	return el
}

// Mark moves the reference time to now. It never moves backward.
func (q *Quantizer) Mark(now int64) {
	if now > q.prev {
		q.prev = now
	}
}

// Previous is the reference time of the next Fix, in milliseconds.
func (q *Quantizer) Previous() int64 { return q.prev }
