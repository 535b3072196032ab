// Command miditools turns live MIDI input into notes and chords, records it
// and plays standard MIDI files back.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	midi.CloseDriver()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
