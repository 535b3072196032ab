// Package transport connects MIDI ports and serial keyboards to a session.
package transport

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// MessageHandler receives a decoded message and its timestamp in milliseconds.
// Session.HandleMessage fits.
type MessageHandler func(msg midi.Message, timestamp int64) error

// InPorts and OutPorts list the port names of the registered driver.
func InPorts() []string {
	var names []string
	for _, p := range midi.GetInPorts() {
		names = append(names, p.String())
	}
	return names
}

func OutPorts() []string {
	var names []string
	for _, p := range midi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// FindIn looks an input port up by name. An empty name picks the first port.
func FindIn(name string) (drivers.In, error) {
	if name == "" {
		ins := midi.GetInPorts()
		if len(ins) == 0 {
			return nil, fmt.Errorf("no MIDI input ports")
		}
		return ins[0], nil
	}
	return midi.FindInPort(name)
}

func FindOut(name string) (drivers.Out, error) {
	if name == "" {
		outs := midi.GetOutPorts()
		if len(outs) == 0 {
			return nil, fmt.Errorf("no MIDI output ports")
		}
		return outs[0], nil
	}
	return midi.FindOutPort(name)
}

// ListenPort feeds handle from in until ctx is done.
func ListenPort(ctx context.Context, in drivers.In, handle MessageHandler, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("input")
	stop, err := midi.ListenTo(in, func(msg midi.Message, absms int32) {
		if err := handle(msg, int64(absms)); err != nil {
			logger.Error("handle", "msg", msg.String(), "err", err)
		}
	}, midi.UseTimeCode())
	if err != nil {
		return fmt.Errorf("listen to %s: %w", in.String(), err)
	}
	logger.Info("listening", "input", in.String())
	<-ctx.Done()
	stop()
	return nil
}
