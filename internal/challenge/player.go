// internal/challenge/player.go
//
// Challenge sequence player: presents a round by playing its tonic, each
// target, then the tonic again, with a fixed pause per note.
//
// Per note:
//   1. start the note (skipped while audio is not ready)
//   2. record it as played/sounding on the round
//   3. highlight it when it is the first or last note
//   4. wait until the note is audible, then wait the pause
//   5. stop the note (skipped while audio is not ready) and record it silenced
//   6. clear the highlight of the first note
//
// Notes:
//   - The timer chain runs whether or not audio is ready.
//   - There is no timeout on the "audible" wait; cancel ctx to abort a stalled
//     run. Cancellation is checked between steps.

package challenge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tonewheel/internal/audio"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

// DefaultPause is the time each challenge note sounds.
const DefaultPause = time.Second

// Highlighter marks reference tones for presentation.
type Highlighter interface {
	Highlight(n music.Note)
	Unhighlight(n music.Note)
}

// Player plays challenge sequences. The zero value is silent with DefaultPause.
type Player struct {
	Audio       audio.Player
	Highlighter Highlighter
	Pause       time.Duration
	Options     audio.Options
}

// Play runs the whole sequence for r and returns when it has finished or ctx
// is done. A round without rules is a no-op.
func (p *Player) Play(ctx context.Context, r *game.Round) error {
	rules, ok := r.Rules()
	if !ok {
		return nil
	}
	seq := rules.Sequence()
	logger := log.With().Str("round", r.ID()).Logger()

	r.BeginChallenge()
	defer r.EndChallenge()

	for i, n := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		edge := i == 0 || i == len(seq)-1

		voice := p.start(n)
		r.NoteSounding(n)
		if edge {
			p.highlight(n, true)
		}
		logger.Debug().Str("note", n.String()).Int("step", i).Msg("challenge note on")

		err := p.wait(ctx, voice)
		p.stop(n)
		r.NoteSilenced(n)
		if i == 0 {
			p.highlight(n, false)
		}
		if err != nil {
			logger.Debug().Err(err).Msg("challenge aborted")
			return err
		}
	}
	return nil
}

func (p *Player) pause() time.Duration {
	if p.Pause <= 0 {
		return DefaultPause
	}
	return p.Pause
}

func (p *Player) ready() bool { return p.Audio != nil && p.Audio.Ready() }

func (p *Player) start(n music.Note) *audio.Voice {
	if !p.ready() {
		return nil
	}
	return p.Audio.StartNote(n, p.Options)
}

func (p *Player) stop(n music.Note) {
	if !p.ready() {
		return
	}
	if err := p.Audio.StopNote(n); err != nil {
		log.Warn().Err(err).Str("note", n.String()).Msg("stop note")
	}
}

func (p *Player) highlight(n music.Note, on bool) {
	if p.Highlighter == nil {
		return
	}
	if on {
		p.Highlighter.Highlight(n)
	} else {
		p.Highlighter.Unhighlight(n)
	}
}

// wait blocks until the voice is audible and then for the pause.
func (p *Player) wait(ctx context.Context, v *audio.Voice) error {
	if v != nil {
		select {
		case <-v.Started():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t := time.NewTimer(p.pause())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
