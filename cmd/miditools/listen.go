package main

import (
	"github.com/JeanRibes/miditools/transport"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	listenFlags sessionFlags
	listenInput string
)

func init() {
	listenCmd.Flags().StringVarP(&listenInput, "input", "i", "", "MIDI input port (default from config, else a virtual port)")
	listenFlags.register(listenCmd)
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Group notes played on a MIDI input into chords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.FromContext(ctx)
		if listenInput != "" {
			cfg.MIDI.Input = listenInput
		}

		in, err := openInput(cfg.MIDI.Input, logger)
		if err != nil {
			return err
		}
		r, err := newRig(ctx, &listenFlags, logger, nil, nil)
		if err != nil {
			return err
		}
		return r.close(transport.ListenPort(ctx, in, r.session.HandleMessage, logger))
	},
}
