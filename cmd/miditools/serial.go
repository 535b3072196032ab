package main

import (
	"github.com/JeanRibes/miditools/transport"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

var (
	serialFlags  sessionFlags
	serialPort   string
	serialBaud   int
	serialKeymap string
)

func init() {
	f := serialCmd.Flags()
	f.StringVarP(&serialPort, "port", "p", "", "serial device (default from config)")
	f.IntVar(&serialBaud, "baud", 0, "baud rate (default from config)")
	f.StringVarP(&serialKeymap, "keymap", "k", "", "keymap file (default from config)")
	serialFlags.register(serialCmd)
	rootCmd.AddCommand(serialCmd)
}

var serialCmd = &cobra.Command{
	Use:   "serial",
	Short: "Group notes played on a serial keyboard into chords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.FromContext(ctx)
		if serialPort != "" {
			cfg.Serial.Port = serialPort
		}
		if serialBaud > 0 {
			cfg.Serial.Baud = serialBaud
		}
		if serialKeymap != "" {
			cfg.Serial.Keymap = serialKeymap
		}

		km, err := transport.LoadKeymap(cfg.Serial.Keymap)
		if err != nil {
			return err
		}
		port, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		logger.Info("serial keyboard", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud, "keys", len(km))

		r, err := newRig(ctx, &serialFlags, logger, nil, nil)
		if err != nil {
			return err
		}
		kb := transport.NewKeyboard(km, clock.RealClock{}, logger)
		return r.close(transport.ListenSerial(ctx, port, kb, r.session.HandleMessage))
	},
}
