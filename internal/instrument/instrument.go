// Package instrument tracks which notes are held down and which are
// highlighted on the tone wheel.
package instrument

import (
	"sort"
	"sync"

	"github.com/robalobadob/tonewheel/internal/music"
)

// Instrument is safe for concurrent use.
type Instrument struct {
	mu          sync.RWMutex
	held        map[music.Note]struct{}
	highlighted map[music.Note]struct{}
}

func New() *Instrument {
	return &Instrument{
		held:        make(map[music.Note]struct{}),
		highlighted: make(map[music.Note]struct{}),
	}
}

func (i *Instrument) Hold(n music.Note) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.held[n] = struct{}{}
}

func (i *Instrument) Release(n music.Note) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.held, n)
}

func (i *Instrument) Highlight(n music.Note) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.highlighted[n] = struct{}{}
}

func (i *Instrument) Unhighlight(n music.Note) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.highlighted, n)
}

// Reset releases and unhighlights everything.
func (i *Instrument) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.held = make(map[music.Note]struct{})
	i.highlighted = make(map[music.Note]struct{})
}

// Held returns held notes ordered by pitch.
func (i *Instrument) Held() []music.Note {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return sorted(i.held)
}

// Highlighted returns highlighted notes ordered by pitch.
func (i *Instrument) Highlighted() []music.Note {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return sorted(i.highlighted)
}

func sorted(set map[music.Note]struct{}) []music.Note {
	out := make([]music.Note, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].MIDI != out[b].MIDI {
			return out[a].MIDI < out[b].MIDI
		}
		return out[a].ID < out[b].ID
	})
	return out
}
