package main

import (
	"fmt"

	"github.com/JeanRibes/miditools/transport"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI and serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "MIDI inputs:")
		for _, name := range transport.InPorts() {
			fmt.Fprintln(w, "  "+name)
		}
		fmt.Fprintln(w, "MIDI outputs:")
		for _, name := range transport.OutPorts() {
			fmt.Fprintln(w, "  "+name)
		}
		serials, err := transport.SerialPorts()
		if err != nil {
			log.FromContext(cmd.Context()).Warn("serial ports", "err", err)
			return nil
		}
		fmt.Fprintln(w, "Serial ports:")
		for _, name := range serials {
			fmt.Fprintln(w, "  "+name)
		}
		return nil
	},
}
