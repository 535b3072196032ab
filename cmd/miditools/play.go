package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/JeanRibes/miditools/player"
	"github.com/JeanRibes/miditools/shared"
	"github.com/JeanRibes/miditools/soundfont"
	"github.com/JeanRibes/miditools/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	playOutput  string
	playWAV     string
	playLogFile string
)

func init() {
	f := playCmd.Flags()
	f.StringVarP(&playOutput, "output", "o", "", "MIDI output port (default from config, else a virtual port)")
	f.StringVar(&playWAV, "wav", "", "tape the soundfont synthesizer to this WAV file")
	f.StringVar(&playLogFile, "log-file", "", "write logs here while the player is on screen")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a standard MIDI file with a terminal transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// the widget owns the terminal
		var logOut io.Writer = io.Discard
		if playLogFile != "" {
			f, err := os.Create(playLogFile)
			if err != nil {
				return err
			}
			defer f.Close()
			logOut = f
		}
		logger := log.NewWithOptions(logOut, log.Options{Level: cfg.Level(), ReportTimestamp: true})

		if playOutput != "" {
			cfg.MIDI.Output = playOutput
		}
		out := newOutputs(ctx, cfg.MIDI.Output, logger)
		out.loadSoundfont(soundfont.NewDirLoader(cfg.Soundfonts.Dir, soundfont.WithLogger(logger)), cfg.Soundfonts.Default)
		wait, err := out.tape(ctx, playWAV)
		if err != nil {
			return err
		}

		updates := make(chan shared.Message, 1)
		pl := player.New(out.direct,
			player.WithFPS(cfg.Player.FPS),
			player.WithProgress(player.Updates(updates)),
			player.WithLogger(logger),
		)
		if err := pl.LoadFile(args[0]); err != nil {
			return err
		}
		logger.Info("loaded", "file", args[0], "tempo", pl.Tempo(), "length", player.FormatTime(pl.Progress().Total))

		model := ui.New(filepath.Base(args[0]), updates, func(msg shared.Message) {
			pl.Handle(ctx, msg)
		})
		pl.Play(ctx)
		_, err = tea.NewProgram(model, tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
		pl.Stop()
		cancel()
		return errors.Join(err, wait())
	},
}
