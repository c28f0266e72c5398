// internal/music/note.go
//
// Note model for the 12-tone equal temperament tuning.
// Defines:
//   - Note: a pitch class identifier, optionally pinned to a MIDI number.
//   - ParseNote: accepts "C", "F#", "Eb4", "a#3" and normalises to sharps.
//   - MIDINumber / Frequency helpers (A4 = MIDI 69 = 440Hz).
//
// Notes:
//   - Game logic compares notes by ID only; the octave never affects correctness.
//   - MIDI 0 is reserved as "unpitched". The playable range starts well above it.

package music

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PitchClasses lists the note identifiers of the tuning, sharps spelling, from C.
var PitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// flatAliases maps flat spellings onto the sharp identifiers used internally.
var flatAliases = map[string]string{
	"DB": "C#", "EB": "D#", "GB": "F#", "AB": "G#", "BB": "A#",
	"CB": "B", "FB": "E", "E#": "F", "B#": "C",
}

var (
	ErrInvalidNote = errors.New("music: invalid note")
	ErrUnpitched   = errors.New("music: note has no pitch")
)

// Note identifies a pitch class and, when pitched, an absolute MIDI number.
type Note struct {
	ID   string `json:"id"`
	MIDI int    `json:"midi,omitempty"`
}

// Pitched reports whether the note carries a MIDI number.
func (n Note) Pitched() bool { return n.MIDI > 0 }

// Same reports whether two notes share the same pitch class.
func (n Note) Same(o Note) bool { return n.ID == o.ID }

// String renders "C4" for pitched notes and "C" otherwise.
func (n Note) String() string {
	if !n.Pitched() {
		return n.ID
	}
	return fmt.Sprintf("%s%d", n.ID, n.MIDI/12-1)
}

// PitchClassIndex returns the 0..11 position of id within PitchClasses, or -1.
func PitchClassIndex(id string) int {
	for i, pc := range PitchClasses {
		if pc == id {
			return i
		}
	}
	return -1
}

// MIDINumber returns the MIDI number of a pitch class in the given octave
// (scientific pitch notation, C4 = 60).
func MIDINumber(id string, octave int) (int, error) {
	i := PitchClassIndex(id)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, id)
	}
	m := 12*(octave+1) + i
	if m <= 0 || m > 127 {
		return 0, fmt.Errorf("%w: %s%d out of range", ErrInvalidNote, id, octave)
	}
	return m, nil
}

// FromMIDI builds a pitched Note from a MIDI number.
func FromMIDI(m int) Note {
	return Note{ID: PitchClasses[((m%12)+12)%12], MIDI: m}
}

// Frequency returns the equal-temperament frequency of a MIDI number in Hz.
func Frequency(m int) float64 {
	return 440.0 * math.Pow(2, (float64(m)-69.0)/12.0)
}

// ParseNote parses a pitch class with an optional octave suffix.
// Letters are case-insensitive; "b" after the letter is a flat.
func ParseNote(s string) (Note, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Note{}, fmt.Errorf("%w: empty", ErrInvalidNote)
	}

	// Split the name part from a trailing (possibly negative) octave number.
	cut := len(s)
	for cut > 1 && (s[cut-1] >= '0' && s[cut-1] <= '9' || s[cut-1] == '-') {
		cut--
	}
	name, octStr := s[:cut], s[cut:]

	id := strings.ToUpper(name[:1]) + name[1:]
	if len(id) == 2 && id[1] == 'b' {
		id = id[:1] + "B"
	}
	if alias, ok := flatAliases[strings.ToUpper(id)]; ok {
		id = alias
	}
	if PitchClassIndex(id) < 0 {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
	}
	if octStr == "" {
		return Note{ID: id}, nil
	}

	oct, err := strconv.Atoi(octStr)
	if err != nil {
		return Note{}, fmt.Errorf("%w: octave %q", ErrInvalidNote, octStr)
	}
	// Cb/B# cross the octave boundary.
	switch strings.ToUpper(name) {
	case "CB":
		oct--
	case "B#":
		oct++
	}
	m, err := MIDINumber(id, oct)
	if err != nil {
		return Note{}, err
	}
	return Note{ID: id, MIDI: m}, nil
}
