package main

import (
	"os"

	"github.com/JeanRibes/miditools/config"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "miditools",
	Short:         "Turn live MIDI input into notes and chords",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			if p, err := config.DefaultPath(); err == nil {
				path = p
			}
		}
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if debug {
			c.LogLevel = "debug"
		}
		cfg = c

		logger := log.NewWithOptions(os.Stderr, log.Options{
			Level:           c.Level(),
			ReportTimestamp: true,
		})
		log.SetDefault(logger)
		logger.Debug("config", "path", path)
		cmd.SetContext(log.WithContext(cmd.Context(), logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/miditools/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
}
