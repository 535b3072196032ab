package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JeanRibes/miditools/capture"
	"github.com/JeanRibes/miditools/miditools"
	"github.com/JeanRibes/miditools/music"
	"github.com/JeanRibes/miditools/soundfont"
	"github.com/JeanRibes/miditools/transport"
	"github.com/charmbracelet/log"
	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"gitlab.com/gomidi/midi/v2/smf"
	"k8s.io/utils/clock"
)

const (
	virtualPortName = "miditools"
	sampleRate      = 44100
	sinkQueue       = 256
)

// sessionFlags are shared by the commands that drive a session.
type sessionFlags struct {
	output   string
	record   string
	quantize bool
	melody   bool
	wav      string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "MIDI output port (default from config, else a virtual port)")
	flags.StringVarP(&f.record, "record", "r", "", "save the performance and its notation to this MIDI file on exit")
	flags.BoolVar(&f.quantize, "quantize", false, "also save a quantized copy of the performance next to --record")
	flags.BoolVar(&f.melody, "melody", false, "also save the performance reduced to one note at a time next to --record")
	flags.StringVar(&f.wav, "wav", "", "tape the soundfont synthesizer to this WAV file")
}

// openOutput finds the named output port, or opens a virtual one.
func openOutput(name string, logger *log.Logger) (drivers.Out, error) {
	out, err := transport.FindOut(name)
	if err == nil {
		return out, nil
	}
	logger.Warn("can't find output, opening a virtual one", "err", err)
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, err
	}
	return drv.OpenVirtualOut(virtualPortName)
}

// openInput finds the named input port, or opens a virtual one.
func openInput(name string, logger *log.Logger) (drivers.In, error) {
	in, err := transport.FindIn(name)
	if err == nil {
		return in, nil
	}
	logger.Warn("can't find input, opening a virtual one", "err", err)
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, err
	}
	return drv.OpenVirtualIn(virtualPortName)
}

// outputs is where notes go: a MIDI port and a swappable synthesizer.
// direct sends on the caller's goroutine, sink through a queue.
type outputs struct {
	port   *miditools.PortSink
	synth  *miditools.SwapSink
	direct miditools.MultiSink
	sink   miditools.Sink
	logger *log.Logger
}

func newOutputs(ctx context.Context, portName string, logger *log.Logger) *outputs {
	o := &outputs{
		port:   miditools.NewPortSink(logger),
		synth:  &miditools.SwapSink{},
		logger: logger,
	}
	if out, err := openOutput(portName, logger); err != nil {
		logger.Warn("no MIDI output, notes only go to the synthesizer", "err", err)
	} else if err := o.port.Connect(out); err != nil {
		logger.Warn("can't open output", "output", out.String(), "err", err)
	}
	o.direct = miditools.MultiSink{o.port, o.synth}
	o.sink = miditools.NewScheduledSink(ctx, o.direct, sinkQueue, logger)
	return o
}

// useSoundfont puts a synthesizer for sf behind the swap sink.
func (o *outputs) useSoundfont(name string, sf *meltysynth.SoundFont) {
	s, err := miditools.NewSynthSink(sf, sampleRate)
	if err != nil {
		o.logger.Error("synthesizer", "soundfont", name, "err", err)
		return
	}
	o.synth.Swap(s)
	o.logger.Info("synthesizer ready", "soundfont", name)
}

// loadSoundfont loads name in the background and then plays through it.
func (o *outputs) loadSoundfont(loader *soundfont.Loader, name string) {
	if name == "" {
		return
	}
	loader.LoadAsync(name, func(sf *meltysynth.SoundFont, err error) {
		if err != nil {
			o.logger.Warn("soundfont", "name", name, "err", err)
			return
		}
		o.useSoundfont(name, sf)
	})
}

type synthTape struct{ *miditools.SwapSink }

func (synthTape) SampleRate() int32 { return sampleRate }

// tape records the synthesizer to path until ctx is done. The returned
// function waits for the file to be complete.
func (o *outputs) tape(ctx context.Context, path string) (wait func() error, err error) {
	if path == "" {
		return func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		err := miditools.Tape(ctx, clock.RealClock{}, synthTape{o.synth}, f)
		done <- errors.Join(err, f.Close())
	}()
	o.logger.Info("taping", "path", path)
	return func() error { return <-done }, nil
}

// rig is a session with everything the commands hang around it.
type rig struct {
	session  *miditools.Session
	recorder *capture.Recorder
	outputs  *outputs
	loader   *soundfont.Loader
	flags    *sessionFlags
	wait     func() error
	cancel   context.CancelFunc
	logger   *log.Logger
}

// newRig builds a session from the config. extra handlers run after the
// defaults; next receives emitted elements after they are logged and recorded.
func newRig(ctx context.Context, flags *sessionFlags, logger *log.Logger, extra []miditools.Handler, next miditools.ChordHandler) (*rig, error) {
	if flags.output != "" {
		cfg.MIDI.Output = flags.output
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &rig{flags: flags, cancel: cancel, logger: logger}
	r.outputs = newOutputs(ctx, cfg.MIDI.Output, logger)
	r.loader = soundfont.NewDirLoader(cfg.Soundfonts.Dir, soundfont.WithLogger(logger))
	r.outputs.loadSoundfont(r.loader, cfg.Soundfonts.Default)

	chords := logChord(logger, next)
	if flags.record != "" {
		r.recorder = capture.NewRecorder(cfg.Tempo, logger)
		reg.General = append(reg.General, r.recorder.Handler())
		chords = r.recorder.ChordHandler(chords)
	}
	reg.General = append(reg.General, extra...)
	reg.SendOutChord = chords

	opts, err := cfg.SessionOptions(reg)
	if err != nil {
		cancel()
		return nil, err
	}
	opts = append(opts, miditools.WithSink(r.outputs.sink), miditools.WithLogger(logger))
	r.session = miditools.NewSession(opts...)

	if r.wait, err = r.outputs.tape(ctx, flags.wav); err != nil {
		cancel()
		return nil, err
	}
	r.session.Start(ctx)
	return r, nil
}

// close flushes the session, stops the tape and saves what was recorded.
// It does not depend on the caller's context being done.
func (r *rig) close(errs error) error {
	r.session.Stop()
	errs = errors.Join(errs, r.session.Flush())
	r.cancel()
	errs = errors.Join(errs, r.wait())
	if r.recorder == nil {
		return errs
	}
	errs = errors.Join(errs, r.recorder.SaveToFile(r.flags.record))
	if r.flags.quantize {
		errs = errors.Join(errs, r.save(r.recorder.Quantized, "quantized"))
	}
	if r.flags.melody {
		errs = errors.Join(errs, r.save(func() (*smf.SMF, error) { return r.recorder.Melody(false) }, "melody"))
	}
	return errs
}

// save writes a derived file next to the recording.
func (r *rig) save(build func() (*smf.SMF, error), suffix string) error {
	f, err := build()
	if err != nil {
		return fmt.Errorf("%s: %w", suffix, err)
	}
	path := suffixed(r.flags.record, suffix)
	if err := f.WriteFile(path); err != nil {
		return err
	}
	r.logger.Info("saved", "path", path)
	return nil
}

func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + suffix + ext
}

func logChord(logger *log.Logger, next miditools.ChordHandler) miditools.ChordHandler {
	return func(s *miditools.Session, el music.Element) error {
		var names []string
		for _, p := range el.Pitches() {
			names = append(names, p.NameWithOctave())
		}
		logger.Info("emitted", "pitches", strings.Join(names, " "), "quarter_length", el.QuarterLength())
		if next == nil {
			return nil
		}
		return next(s, el)
	}
}
