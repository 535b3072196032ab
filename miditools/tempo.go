package miditools

import (
	"sync"
	"time"
)

const (
	DefaultTempo    = 60.0
	DefaultMaxDelay = 100 * time.Millisecond

	pulsesPerQuarter = 24
)

// TempoSource reports the current tempo in beats per minute.
type TempoSource interface {
	Tempo() float64
}

// FixedTempo is the local fallback tempo.
type FixedTempo float64

func (f FixedTempo) Tempo() float64 {
	if f <= 0 {
		return DefaultTempo
	}
	return float64(f)
}

// TempoFunc adapts a function, e.g. a player's current tempo.
type TempoFunc func() float64

func (f TempoFunc) Tempo() float64 { return f() }

// ClockTempo follows an external MIDI clock (24 pulses per quarter note).
// Until one full beat of pulses has been seen it reports the fallback tempo.
type ClockTempo struct {
	mu        sync.Mutex
	fallback  float64
	last      time.Time
	intervals []time.Duration
	next      int
}

func NewClockTempo(fallback float64) *ClockTempo {
	return &ClockTempo{
		fallback:  FixedTempo(fallback).Tempo(),
		intervals: make([]time.Duration, 0, pulsesPerQuarter),
	}
}

// Pulse records one timing clock message received at t.
func (c *ClockTempo) Pulse(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() && t.After(c.last) {
		d := t.Sub(c.last)
		if len(c.intervals) < pulsesPerQuarter {
			c.intervals = append(c.intervals, d)
		} else {
			c.intervals[c.next] = d
		}
		c.next = (c.next + 1) % pulsesPerQuarter
	}
	c.last = t
}

// Reset forgets the measured pulses, on transport start or stop.
func (c *ClockTempo) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
	c.intervals = c.intervals[:0]
	c.next = 0
}

func (c *ClockTempo) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.intervals) < pulsesPerQuarter {
		return c.fallback
	}
	var beat time.Duration
	for _, d := range c.intervals {
		beat += d
	}
	if beat <= 0 {
		return c.fallback
	}
	return float64(time.Minute) / float64(beat)
}

type clockFollower interface {
	Pulse(t time.Time)
	Reset()
}
