package miditools

import (
	"time"

	"github.com/JeanRibes/miditools/music"
)

// Aggregator gathers note-ons arriving within maxDelay of the first one.
// It is either idle or collecting; Tick closes an expired window.
type Aggregator struct {
	maxDelay    time.Duration
	held        []*music.Note
	windowStart time.Time
}

func NewAggregator(maxDelay time.Duration) *Aggregator {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Aggregator{maxDelay: maxDelay}
}

func (a *Aggregator) MaxDelay() time.Duration { return a.maxDelay }

// Collecting reports whether a window is open.
func (a *Aggregator) Collecting() bool { return len(a.held) > 0 }

// Add appends n unless a note with the same pitch is already held.
// The first note opens the window at now.
func (a *Aggregator) Add(n *music.Note, now time.Time) bool {
	for _, h := range a.held {
		if h.Pitch == n.Pitch {
			return false
		}
	}
	if len(a.held) == 0 {
		a.windowStart = now
	}
	a.held = append(a.held, n)
	return true
}

// Pending returns the held notes in arrival order.
func (a *Aggregator) Pending() []*music.Note {
	out := make([]*music.Note, len(a.held))
	copy(out, a.held)
	return out
}

// Tick flushes when the window opened at least maxDelay before now.
// It returns nil when idle or when the window is still open.
func (a *Aggregator) Tick(now time.Time) music.Element {
	if len(a.held) == 0 || now.Sub(a.windowStart) < a.maxDelay {
		return nil
	}
	return a.Flush()
}

// Flush closes the window: two or more notes become a chord, a lone note is returned as is.
func (a *Aggregator) Flush() music.Element {
	held := a.held
	a.held = nil
	switch len(held) {
	case 0:
		return nil
	case 1:
		return held[0]
	default:
		return music.NewChord(held...)
	}
}
