package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/tonewheel/internal/config"
)

var (
	cfg       config.Config
	logLevel  string
	scale     string
	scaleRoot string
	pause     string
)

var rootCmd = &cobra.Command{
	Use:   "tonewheel",
	Short: "Interval ear-training",
	Long: `tonewheel plays a tonic and a second note and asks you to name the second one.
Run "serve" for the HTTP API or "play" for a round in the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("scale") {
			cfg.Scale = scale
		}
		if flags.Changed("root") {
			cfg.ScaleRoot = scaleRoot
		}
		if flags.Changed("pause") {
			d, err := parsePause(pause)
			if err != nil {
				return err
			}
			cfg.ChallengePause = d
		}
		cfg.ApplyLogLevel()
		if cmd.Name() != "serve" {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "zerolog level")
	pf.StringVar(&scale, "scale", "major", "candidate scale: major, minor, pentatonic, chromatic")
	pf.StringVar(&scaleRoot, "root", "C4", "scale root with octave")
	pf.StringVar(&pause, "pause", "1s", "pause per challenge note")
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
