package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robalobadob/tonewheel/internal/music"
)

func TestHighlightAndReset(t *testing.T) {
	c4 := music.Note{ID: "C", MIDI: 60}
	g4 := music.Note{ID: "G", MIDI: 67}

	inst := New()
	inst.Highlight(g4)
	inst.Highlight(c4)
	inst.Highlight(c4)
	inst.Hold(g4)
	assert.Equal(t, []music.Note{c4, g4}, inst.Highlighted())
	assert.Equal(t, []music.Note{g4}, inst.Held())

	inst.Unhighlight(g4)
	inst.Release(g4)
	assert.Equal(t, []music.Note{c4}, inst.Highlighted())
	assert.Empty(t, inst.Held())

	inst.Hold(c4)
	inst.Reset()
	assert.Empty(t, inst.Highlighted())
	assert.Empty(t, inst.Held())
}
