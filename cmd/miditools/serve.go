package main

import (
	"context"
	"errors"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/server"
	"github.com/JeanRibes/miditools/transport"
	"github.com/charmbracelet/log"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/spf13/cobra"
)

var (
	serveFlags   sessionFlags
	serveInput   string
	serveAddr    string
	serveHistory int
)

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveInput, "input", "i", "", "MIDI input port (default from config, else a virtual port)")
	f.StringVarP(&serveAddr, "addr", "a", "", "HTTP listen address (default from config)")
	f.IntVar(&serveHistory, "history", server.DefaultHistorySize, "how many emitted elements the API keeps")
	serveFlags.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen to a MIDI input and serve the emitted chords over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		logger := log.FromContext(ctx)
		if serveInput != "" {
			cfg.MIDI.Input = serveInput
		}
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}

		history := server.NewHistory(serveHistory)
		r, err := newRig(ctx, &serveFlags, logger, []miditools.Handler{history.Handler()}, history.ChordHandler(nil))
		if err != nil {
			return err
		}

		listened := make(chan error, 1)
		if in, err := openInput(cfg.MIDI.Input, logger); err != nil {
			logger.Warn("serving without MIDI input", "err", err)
			close(listened)
		} else {
			go func() { listened <- transport.ListenPort(ctx, in, r.session.HandleMessage, logger) }()
		}

		srv := server.New(history, r.loader, cfg, r.session,
			server.WithLogger(logger),
			server.WithSoundfontLoaded(func(name string, sf *meltysynth.SoundFont) {
				r.outputs.useSoundfont(name, sf)
			}),
		)
		err = srv.ListenAndServe(ctx, cfg.HTTP.Addr)
		cancel()
		return r.close(errors.Join(err, <-listened))
	},
}
