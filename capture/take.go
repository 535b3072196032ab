package capture

import (
	"math"
	"sort"

	"github.com/JeanRibes/miditools/music"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Take is one played note: where it starts and how long it is held, in ticks.
type Take struct {
	Key      uint8
	Velocity uint8
	Start    uint32
	Duration uint32
}

// Takes pairs the note-ons and note-offs of tr. A note struck again while
// still held is cut at the new strike; notes never released end with the track.
func Takes(tr smf.Track) []Take {
	var (
		takes        []Take
		abs          uint32
		ch, key, vel uint8
		open         = map[uint8]int{}
	)
	for _, ev := range tr {
		abs += ev.Delta
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			if i, ok := open[key]; ok {
				takes[i].Duration = abs - takes[i].Start
			}
			open[key] = len(takes)
			takes = append(takes, Take{Key: key, Velocity: vel, Start: abs})
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			if i, ok := open[key]; ok {
				takes[i].Duration = abs - takes[i].Start
				delete(open, key)
			}
		}
	}
	for _, i := range open {
		takes[i].Duration = abs - takes[i].Start
	}
	return takes
}

// Note turns the take into a note whose quarter length follows ticks.
func (t Take) Note(ticks smf.MetricTicks) *music.Note {
	n := music.NewNote(int(t.Key))
	n.Velocity = int(t.Velocity)
	n.SetQuarterLength(float64(t.Duration) / float64(ticks.Ticks4th()))
	return n
}

// Monophonic keeps one note sounding at a time. A note struck while another
// sounds is dropped, or with cut it ends the sounding one. takes must be in
// start order, as Takes returns them.
func Monophonic(takes []Take, cut bool) []Take {
	var out []Take
	for _, t := range takes {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if t.Start < last.Start+last.Duration {
				if !cut {
					continue
				}
				last.Duration = t.Start - last.Start
				if last.Duration == 0 {
					out = out[:len(out)-1]
				}
			}
		}
		out = append(out, t)
	}
	return out
}

type timed struct {
	at  uint32
	off bool
	msg midi.Message
}

// Track lays takes out on channel 0. The track is left open.
func Track(takes []Take) smf.Track {
	events := make([]timed, 0, 2*len(takes))
	for _, t := range takes {
		events = append(events,
			timed{at: t.Start, msg: midi.NoteOn(0, t.Key, t.Velocity)},
			timed{at: t.Start + t.Duration, off: true, msg: midi.NoteOff(0, t.Key)},
		)
	}
	// offs first so that repeated notes are released before being struck again
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].off && !events[j].off
	})

	var tr smf.Track
	var prev uint32
	for _, ev := range events {
		tr.Add(ev.at-prev, ev.msg)
		prev = ev.at
	}
	return tr
}

func quarterTicks(ql float64, ticks smf.MetricTicks) uint32 {
	if ql <= 0 {
		return 0
	}
	return uint32(math.Round(ql * float64(ticks.Ticks4th())))
}
