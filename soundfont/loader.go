// Package soundfont loads named .sf2 resources for the synthesizer sink.
package soundfont

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

const ext = ".sf2"

var ErrUnknownSoundfont = errors.New("unknown soundfont")

type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unloaded":
		*s = Unloaded
	case "loading":
		*s = Loading
	case "loaded":
		*s = Loaded
	default:
		return fmt.Errorf("unknown soundfont state %q", text)
	}
	return nil
}

// Decoder parses soundfont bytes.
type Decoder func(r io.Reader) (*meltysynth.SoundFont, error)

type entry struct {
	state State
	sf    *meltysynth.SoundFont
	err   error
	done  chan struct{}
}

// Loader reads <name>.sf2 files from a file system. Concurrent loads of the
// same name share one read.
type Loader struct {
	mu      sync.Mutex
	fsys    fs.FS
	decode  Decoder
	entries map[string]*entry
	logger  *log.Logger
}

type Option func(*Loader)

func WithDecoder(d Decoder) Option {
	return func(l *Loader) { l.decode = d }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:    fsys,
		decode:  meltysynth.NewSoundFont,
		entries: map[string]*entry{},
		logger:  log.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = l.logger.WithPrefix("soundfont")
	return l
}

// NewDirLoader loads from a directory on disk.
func NewDirLoader(dir string, opts ...Option) *Loader {
	return NewLoader(os.DirFS(dir), opts...)
}

// Names lists the available soundfonts, sorted.
func (l *Loader) Names() ([]string, error) {
	files, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || path.Ext(f.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(f.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Load blocks until name is loaded. If a load is already running it waits
// for that one. ctx only bounds the wait.
func (l *Loader) Load(ctx context.Context, name string) (*meltysynth.SoundFont, error) {
	e := l.begin(name)
	select {
	case <-e.done:
		return e.sf, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadAsync starts loading name and calls fn from another goroutine once it is done.
func (l *Loader) LoadAsync(name string, fn func(*meltysynth.SoundFont, error)) {
	e := l.begin(name)
	go func() {
		<-e.done
		if fn != nil {
			fn(e.sf, e.err)
		}
	}()
}

func (l *Loader) begin(name string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[name]; ok && e.state != Unloaded {
		return e
	}
	e := &entry{state: Loading, done: make(chan struct{})}
	l.entries[name] = e
	l.logger.Info("loading", "name", name)
	go l.read(name, e)
	return e
}

func (l *Loader) read(name string, e *entry) {
	sf, err := l.open(name)

	l.mu.Lock()
	switch {
	case errors.Is(err, ErrUnknownSoundfont):
		e.state = Unloaded
		e.err = err
		delete(l.entries, name)
	case err != nil:
		e.state = Unloaded
		e.err = err
		l.logger.Error("load failed", "name", name, "err", err)
	default:
		e.state = Loaded
		e.sf = sf
		l.logger.Info("loaded", "name", name)
	}
	l.mu.Unlock()
	close(e.done)
}

func (l *Loader) open(name string) (*meltysynth.SoundFont, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSoundfont, name)
	}
	f, err := l.fsys.Open(name + ext)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSoundfont, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sf, err := l.decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse soundfont %s: %w", name, err)
	}
	return sf, nil
}

func (l *Loader) State(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[name]; ok {
		return e.state
	}
	return Unloaded
}

// States reports every known soundfont, loaded or not.
func (l *Loader) States() map[string]State {
	names, err := l.Names()
	if err != nil {
		l.logger.Warn("listing soundfonts", "err", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]State, len(names))
	for _, n := range names {
		out[n] = Unloaded
	}
	for n, e := range l.entries {
		out[n] = e.state
	}
	return out
}

// Get returns a loaded soundfont without loading it.
func (l *Loader) Get(name string) (*meltysynth.SoundFont, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok || e.state != Loaded {
		return nil, false
	}
	return e.sf, true
}
