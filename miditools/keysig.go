package miditools

import (
	"fmt"
	"strings"
)

// KeySignature counts sharps (positive) or flats (negative), from -6 to 6.
// It lets a player stay on the white keys: notes belonging to the signature
// are bent by a semitone as they arrive.
type KeySignature int

// pitch classes in the order accidentals are added
var (
	sharpOrder = [6]int{5, 0, 7, 2, 9, 4}  // F C G D A E
	flatOrder  = [6]int{11, 4, 9, 2, 7, 0} // B E A D G C
)

var majorKeys = map[string]KeySignature{
	"c": 0, "g": 1, "d": 2, "a": 3, "e": 4, "b": 5, "f#": 6,
	"f": -1, "bb": -2, "eb": -3, "ab": -4, "db": -5, "gb": -6,
}

var minorKeys = map[string]KeySignature{
	"a": 0, "e": 1, "b": 2, "f#": 3, "c#": 4, "g#": 5, "d#": 6,
	"d": -1, "g": -2, "c": -3, "f": -4, "bb": -5, "eb": -6,
}

// ParseKeySignature reads names such as "C major", "Bb major" or "f# minor".
// An empty string is C major.
func ParseKeySignature(name string) (KeySignature, error) {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return 0, nil
	}
	table := majorKeys
	if len(fields) > 1 {
		switch fields[1] {
		case "major":
		case "minor":
			table = minorKeys
		default:
			return 0, fmt.Errorf("unknown mode %q", fields[1])
		}
	}
	ks, ok := table[fields[0]]
	if !ok {
		return 0, fmt.Errorf("unknown key %q", name)
	}
	return ks, nil
}

func (k KeySignature) Valid() bool { return k >= -6 && k <= 6 }

// Alter bends a note belonging to the signature. Notes that would leave 0..127 are kept.
func (k KeySignature) Alter(note int) int {
	if !k.Valid() {
		return note
	}
	pc := ((note % 12) + 12) % 12
	shift := 0
	if k > 0 {
		for _, s := range sharpOrder[:k] {
			if pc == s {
				shift = 1
			}
		}
	} else {
		for _, s := range flatOrder[:-k] {
			if pc == s {
				shift = -1
			}
		}
	}
	altered := note + shift
	if altered < 0 || altered > 127 {
		return note
	}
	return altered
}

func (k KeySignature) String() string {
	switch {
	case k == 0:
		return "no accidentals"
	case k > 0:
		return fmt.Sprintf("%d sharps", int(k))
	default:
		return fmt.Sprintf("%d flats", int(-k))
	}
}
