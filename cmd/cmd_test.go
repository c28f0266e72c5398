package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestIntervalCommand(t *testing.T) {
	out := run(t, "", "interval", "C4", "F#4")
	assert.Contains(t, out, "Augmented Fourth (6 semitones)")
	assert.Contains(t, out, "Tritone")
}

func TestPlayCommandSolvesByElimination(t *testing.T) {
	// Guessing every note of the scale must hit the target exactly once.
	out := run(t, "C\nD\nE\nF\nG\nA\nB\nC\nH\nquit\n", "play", "--silent", "--pause", "1ms")
	assert.Contains(t, out, "Tonic:")
	assert.Equal(t, 1, strings.Count(out, "Solved!"))
	assert.Contains(t, out, `No round in progress`)
	assert.Contains(t, out, `"H" is not a note.`)
}

func TestExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.mid")
	run(t, "", "export", "C4", "G4", "-o", path, "--pause", "500ms")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	s, err := smf.ReadFrom(f)
	require.NoError(t, err)
	require.NotEmpty(t, s.Tracks)

	var ons []uint8
	for _, ev := range s.Tracks[0] {
		var ch, key, vel uint8
		if ev.Message.GetNoteOn(&ch, &key, &vel) {
			ons = append(ons, key)
		}
	}
	assert.Equal(t, []uint8{60, 67, 60}, ons)
}
