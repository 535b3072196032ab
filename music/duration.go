package music

import "fmt"

// Duration is expressed in quarter lengths; 1.0 is one quarter note.
type Duration struct {
	QuarterLength float64
}

var durationTypes = map[float64]string{
	4:     "whole",
	3:     "dotted half",
	2:     "half",
	1.5:   "dotted quarter",
	1:     "quarter",
	0.75:  "dotted eighth",
	0.5:   "eighth",
	0.375: "dotted 16th",
	0.25:  "16th",
	0.125: "32nd",
}

// Type names the duration the way it would be notated.
func (d Duration) Type() string {
	if d.QuarterLength == 0 {
		return "zero"
	}
	if t, ok := durationTypes[d.QuarterLength]; ok {
		return t
	}
	return "complex"
}

func (d Duration) String() string {
	return fmt.Sprintf("%s (%g)", d.Type(), d.QuarterLength)
}
