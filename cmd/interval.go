package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/robalobadob/tonewheel/internal/music"
)

func init() {
	rootCmd.AddCommand(intervalCmd)
}

var intervalCmd = &cobra.Command{
	Use:     "interval FROM TO",
	Short:   "Name the interval between two notes, e.g. interval C4 G4",
	Args:    cobra.ExactArgs(2),
	Example: "  tonewheel interval C4 Eb4",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := music.ParseNote(args[0])
		if err != nil {
			return err
		}
		to, err := music.ParseNote(args[1])
		if err != nil {
			return err
		}
		d, err := music.IntervalSemitones(from, to)
		if err != nil {
			return err
		}
		name, err := music.IntervalName(d)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s -> %s: %s (%d semitones)\n", from, to, name, d)
		if aliases := music.IntervalAliases(d); len(aliases) > 0 {
			fmt.Fprintf(out, "also: %s\n", strings.Join(aliases, ", "))
		}
		return nil
	},
}

func parsePause(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("pause must be positive, got %s", s)
	}
	return d, nil
}
