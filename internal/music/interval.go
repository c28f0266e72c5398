package music

import (
	"errors"
	"fmt"
)

// ErrUnknownInterval is returned for semitone distances with no conventional name.
var ErrUnknownInterval = errors.New("music: unknown interval")

// intervalNames covers unison through octave. Index = semitone distance.
var intervalNames = [...]string{
	"Unison",
	"Minor Second",
	"Major Second",
	"Minor Third",
	"Major Third",
	"Perfect Fourth",
	"Augmented Fourth",
	"Perfect Fifth",
	"Minor Sixth",
	"Major Sixth",
	"Minor Seventh",
	"Major Seventh",
	"Octave",
}

// intervalAliases holds enharmonic spellings of the same distance.
var intervalAliases = map[int][]string{
	0:  {"Perfect Unison"},
	3:  {"Augmented Second"},
	4:  {"Diminished Fourth"},
	5:  {"Augmented Third"},
	6:  {"Diminished Fifth", "Tritone"},
	7:  {"Diminished Sixth"},
	8:  {"Augmented Fifth"},
	9:  {"Diminished Seventh"},
	10: {"Augmented Sixth"},
	12: {"Perfect Octave", "Augmented Seventh"},
}

// IntervalSemitones returns the absolute MIDI distance between two pitched notes.
func IntervalSemitones(a, b Note) (int, error) {
	if !a.Pitched() || !b.Pitched() {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnpitched, a, b)
	}
	d := a.MIDI - b.MIDI
	if d < 0 {
		d = -d
	}
	return d, nil
}

// IntervalName maps a semitone distance to its quality+number label.
func IntervalName(semitones int) (string, error) {
	if semitones < 0 || semitones >= len(intervalNames) {
		return "", fmt.Errorf("%w: %d semitones", ErrUnknownInterval, semitones)
	}
	return intervalNames[semitones], nil
}

// IntervalAliases returns alternative names for a distance, if any.
func IntervalAliases(semitones int) []string {
	return append([]string(nil), intervalAliases[semitones]...)
}

// NameInterval is IntervalSemitones followed by IntervalName.
func NameInterval(a, b Note) (string, error) {
	d, err := IntervalSemitones(a, b)
	if err != nil {
		return "", err
	}
	return IntervalName(d)
}
