package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/robalobadob/tonewheel/internal/challenge"
	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "challenge.mid", `output file, "-" for stdout`)
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export TONIC TARGET...",
	Short: "Write a challenge as a Standard MIDI File",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes := make([]music.Note, 0, len(args))
		for _, a := range args {
			n, err := music.ParseNote(a)
			if err != nil {
				return err
			}
			notes = append(notes, n)
		}
		rules := game.Rules{Tonic: notes[0], Targets: notes[1:], Mode: game.ModeSequential}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return challenge.WriteMIDI(w, rules, cfg.ChallengePause)
	},
}
