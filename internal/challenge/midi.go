package challenge

import (
	"fmt"
	"io"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

const (
	midiBPM         = 120
	ticksPerQuarter = 960
	midiVelocity    = 100
)

// pauseTicks converts a pause to ticks at midiBPM.
func pauseTicks(pause time.Duration) uint32 {
	quarter := time.Minute / midiBPM
	return uint32(int64(pause) * ticksPerQuarter / int64(quarter))
}

// WriteMIDI writes the challenge sequence of rules as a single-track
// Standard MIDI File, each note lasting pause.
func WriteMIDI(w io.Writer, rules game.Rules, pause time.Duration) error {
	if pause <= 0 {
		pause = DefaultPause
	}
	step := pauseTicks(pause)

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(midiBPM))
	for _, n := range rules.Sequence() {
		if !n.Pitched() {
			return fmt.Errorf("challenge midi: %w: %s", music.ErrUnpitched, n)
		}
		key := uint8(n.MIDI)
		tr.Add(0, midi.NoteOn(0, key, midiVelocity))
		tr.Add(step, midi.NoteOff(0, key))
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("challenge midi: add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("challenge midi: write: %w", err)
	}
	return nil
}
