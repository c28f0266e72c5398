// internal/music/scale.go
//
// Scales supply the candidate pool a round's tonic and target are drawn from.
//
// Scale lookup (LookupScale):
//   - "major", "minor", "pentatonic", "chromatic" are built in.
//   - Names are case-insensitive.
//
// Pool construction (Pool):
//   - Root is a pitched note (e.g. C4); every step is added to its MIDI number.
//   - Pools are de-duplicated by ID so a round's tonic and target never share a
//     pitch class by accident.

package music

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownScale = errors.New("music: unknown scale")

// Scale is a named list of semitone offsets from the root.
type Scale struct {
	Name  string
	Steps []int
}

var scales = map[string]Scale{
	"major":      {Name: "major", Steps: []int{0, 2, 4, 5, 7, 9, 11}},
	"minor":      {Name: "minor", Steps: []int{0, 2, 3, 5, 7, 8, 10}},
	"pentatonic": {Name: "pentatonic", Steps: []int{0, 2, 4, 7, 9}},
	"chromatic":  {Name: "chromatic", Steps: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
}

// LookupScale returns a built-in scale by name.
func LookupScale(name string) (Scale, error) {
	s, ok := scales[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scale{}, fmt.Errorf("%w: %q", ErrUnknownScale, name)
	}
	return s, nil
}

// Notes returns the scale's notes starting at root, in ascending order.
func (s Scale) Notes(root Note) ([]Note, error) {
	if !root.Pitched() {
		return nil, fmt.Errorf("%w: scale root %s", ErrUnpitched, root)
	}
	seen := make(map[string]struct{}, len(s.Steps))
	out := make([]Note, 0, len(s.Steps))
	for _, st := range s.Steps {
		n := FromMIDI(root.MIDI + st)
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// Pool resolves a scale name and a root string ("C4") to a candidate pool.
func Pool(scaleName, root string) ([]Note, error) {
	s, err := LookupScale(scaleName)
	if err != nil {
		return nil, err
	}
	r, err := ParseNote(root)
	if err != nil {
		return nil, err
	}
	return s.Notes(r)
}

// Contains reports whether the pool holds a note with the same ID.
func Contains(pool []Note, n Note) bool {
	for _, p := range pool {
		if p.Same(n) {
			return true
		}
	}
	return false
}

// Resolve returns the pool entry sharing n's ID, so a bare "E" guess can be
// played back at the pool's pitch.
func Resolve(pool []Note, n Note) (Note, bool) {
	for _, p := range pool {
		if p.Same(n) {
			return p, true
		}
	}
	return n, false
}
