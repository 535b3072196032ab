// Package shared holds the messages exchanged between the player and its widget.
package shared

import "time"

type Event int

const (
	Quit Event = iota
	PlayPause
	Stop
	Seek
	Progress
	Error
)

func (e Event) String() string {
	switch e {
	case Quit:
		return "quit"
	case PlayPause:
		return "play/pause"
	case Stop:
		return "stop"
	case Seek:
		return "seek"
	case Progress:
		return "progress"
	case Error:
		return "error"
	}
	return "unknown"
}

// Message travels in both directions: commands from the widget (Quit,
// PlayPause, Stop, Seek with a relative Fraction) and Progress or Error
// reports from the player.
type Message struct {
	Type     Event
	Boolean  bool
	String   string
	Fraction float64
	Current  time.Duration
	Total    time.Duration
}

// SeekStep is how far the seek buttons move, as a share of the file.
const SeekStep = 0.05
