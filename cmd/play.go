package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/tonewheel/internal/audio"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
	"github.com/robalobadob/tonewheel/internal/session"
)

var silent bool

func init() {
	playCmd.Flags().BoolVar(&silent, "silent", false, "do not open the speaker")
	rootCmd.AddCommand(playCmd)
}

const playHelp = `Type a note name (E, F#, Bb) to guess.
  new      draw a new pair      restart  same pair again
  replay   hear the challenge   give     give up
  quit     leave`

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play rounds in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := cfg.Pool()
		if err != nil {
			return err
		}

		var player audio.Player = audio.Silent{}
		if !silent {
			smp := audio.NewSampler()
			if err := smp.Init(); err != nil {
				log.Warn().Err(err).Msg("audio unavailable, playing silently")
			} else {
				defer smp.Close()
				player = smp
			}
		}

		sess := session.New(session.Config{
			Pool:    pool,
			Audio:   player,
			Pause:   cfg.ChallengePause,
			Preempt: cfg.ChallengePreempt,
		})
		out := cmd.OutOrStdout()
		sess.OnRound(func(r *game.Round) { narrate(out, r) })

		fmt.Fprintln(out, playHelp)
		ctx := cmd.Context()
		if _, err := sess.StartNewGame(ctx); err != nil {
			return err
		}

		in := bufio.NewScanner(cmd.InOrStdin())
		for fmt.Fprint(out, "> "); in.Scan(); fmt.Fprint(out, "> ") {
			line := strings.TrimSpace(in.Text())
			switch strings.ToLower(line) {
			case "":
			case "q", "quit", "exit":
				sess.EndGame()
				return nil
			case "n", "new":
				_, err = sess.StartNewGame(ctx)
			case "r", "restart":
				_, err = sess.RestartGame(ctx)
			case "p", "replay":
				err = sess.Replay(ctx)
			case "g", "give", "give up":
				if rules, ok := sess.Round().Rules(); ok {
					fmt.Fprintf(out, "It was %s.\n", rules.Targets[0])
				}
				sess.EndGame()
			default:
				err = guess(sess, line)
			}

			switch {
			case errors.Is(err, game.ErrNotInProgress):
				fmt.Fprintln(out, `No round in progress, type "new".`)
			case errors.Is(err, session.ErrChallengePlaying):
				fmt.Fprintln(out, "Still playing, wait for it to finish.")
			case errors.Is(err, music.ErrInvalidNote):
				fmt.Fprintf(out, "%q is not a note.\n", line)
			case err != nil:
				return err
			}
			err = nil
		}
		return in.Err()
	},
}

func guess(sess *session.Session, s string) error {
	n, err := music.ParseNote(s)
	if err != nil {
		return err
	}
	n, _ = music.Resolve(sess.Pool(), n)
	_, err = sess.Guess(n)
	return err
}

// narrate prints r's notifications.
func narrate(out io.Writer, r *game.Round) {
	r.Subscribe(game.EventRoundStarted, func(e game.Event) {
		fmt.Fprintf(out, "Tonic: %s. Which note follows it?\n", e.Rules.Tonic)
	})
	r.Subscribe(game.EventGuessIncorrect, func(e game.Event) {
		fmt.Fprintf(out, "Not %s.\n", e.Guess.Note.ID)
	})
	r.Subscribe(game.EventRoundCompleted, func(e game.Event) {
		target := e.Rules.Targets[0]
		name, err := music.NameInterval(e.Rules.Tonic, target)
		if err != nil {
			name = "?"
		}
		fmt.Fprintf(out, "Solved! %s -> %s is a %s.\n", e.Rules.Tonic, target, name)
	})
	r.Subscribe(game.EventRoundAbandoned, func(e game.Event) {
		fmt.Fprintln(out, "Round abandoned.")
	})
}
