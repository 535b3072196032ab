package server

import (
	"sync"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/music"
)

const DefaultHistorySize = 64

// ElementView is the JSON form of an emitted note or chord.
type ElementView struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Pitches       []string `json:"pitches"`
	MIDI          []int    `json:"midi"`
	QuarterLength float64  `json:"quarter_length"`
	Duration      string   `json:"duration"`
}

func viewOf(el music.Element) ElementView {
	v := ElementView{
		ID:            el.Identifier(),
		Kind:          "note",
		QuarterLength: el.QuarterLength(),
		Duration:      music.Duration{QuarterLength: el.QuarterLength()}.Type(),
	}
	if _, ok := el.(*music.Chord); ok {
		v.Kind = "chord"
	}
	for _, p := range el.Pitches() {
		v.Pitches = append(v.Pitches, p.NameWithOctave())
		v.MIDI = append(v.MIDI, p.MIDI)
	}
	return v
}

// History keeps views of the last emitted elements. The newest view is
// refreshed on each note-on and once more when the next element arrives,
// which is when its length is final.
type History struct {
	mu     sync.Mutex
	size   int
	views  []ElementView
	latest music.Element
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

func (h *History) add(el music.Element) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil && len(h.views) > 0 {
		h.views[len(h.views)-1] = viewOf(h.latest)
	}
	h.views = append(h.views, viewOf(el))
	if len(h.views) > h.size {
		h.views = h.views[len(h.views)-h.size:]
	}
	h.latest = el
}

func (h *History) refresh() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil || len(h.views) == 0 {
		return
	}
	h.views[len(h.views)-1] = viewOf(h.latest)
}

// Elements returns the views, oldest first.
func (h *History) Elements() []ElementView {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ElementView, len(h.views))
	copy(out, h.views)
	return out
}

// ChordHandler records emitted elements before passing them on to next, if any.
func (h *History) ChordHandler(next miditools.ChordHandler) miditools.ChordHandler {
	return func(s *miditools.Session, el music.Element) error {
		h.add(el)
		if next == nil {
			return nil
		}
		return next(s, el)
	}
}

// Handler refreshes the newest view. It belongs after QuantizeLast.
func (h *History) Handler() miditools.Handler {
	return func(_ *miditools.Session, ev miditools.Event) error {
		if ev.IsNoteOn() {
			h.refresh()
		}
		return nil
	}
}
