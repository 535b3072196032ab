// Package config reads the miditools YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const (
	TempoFixed = "fixed"
	TempoClock = "clock"
)

type Config struct {
	// MaxDelay is the chord window in milliseconds.
	MaxDelay     int     `yaml:"max_delay" json:"max_delay"`
	Transpose    int     `yaml:"transpose" json:"transpose"`
	Tempo        float64 `yaml:"tempo" json:"tempo"`
	TempoSource  string  `yaml:"tempo_source" json:"tempo_source"`
	KeySignature string  `yaml:"key_signature" json:"key_signature"`
	Channel      uint8   `yaml:"channel" json:"channel"`
	MIDI         struct {
		Input  string `yaml:"input" json:"input"`
		Output string `yaml:"output" json:"output"`
	} `yaml:"midi" json:"midi"`
	Soundfonts struct {
		Dir     string `yaml:"dir" json:"dir"`
		Default string `yaml:"default" json:"default"`
	} `yaml:"soundfonts" json:"soundfonts"`
	Serial struct {
		Port   string `yaml:"port" json:"port"`
		Baud   int    `yaml:"baud" json:"baud"`
		Keymap string `yaml:"keymap" json:"keymap"`
	} `yaml:"serial" json:"serial"`
	HTTP struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"http" json:"http"`
	Player struct {
		FPS int `yaml:"fps" json:"fps"`
	} `yaml:"player" json:"player"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

func Default() *Config {
	c := &Config{
		MaxDelay:    int(miditools.DefaultMaxDelay / time.Millisecond),
		Tempo:       miditools.DefaultTempo,
		TempoSource: TempoFixed,
		LogLevel:    "info",
	}
	c.Soundfonts.Dir = "soundfonts"
	c.Serial.Baud = 115200
	c.Serial.Keymap = "keymap.txt"
	c.HTTP.Addr = ":8080"
	c.Player.FPS = 25
	return c
}

// DefaultPath is ~/.config/miditools/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "miditools", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file gives the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) Validate() (errs error) {
	if c.MaxDelay <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max_delay must be positive, got %d", c.MaxDelay))
	}
	if c.Tempo <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tempo must be positive, got %v", c.Tempo))
	}
	if c.TempoSource != TempoFixed && c.TempoSource != TempoClock {
		errs = errors.Join(errs, fmt.Errorf("tempo_source must be %q or %q, got %q", TempoFixed, TempoClock, c.TempoSource))
	}
	if c.Channel > 15 {
		errs = errors.Join(errs, fmt.Errorf("channel must be 0 to 15, got %d", c.Channel))
	}
	if _, err := miditools.ParseKeySignature(c.KeySignature); err != nil {
		errs = errors.Join(errs, fmt.Errorf("key_signature: %w", err))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = errors.Join(errs, fmt.Errorf("log_level: %w", err))
	}
	return errs
}

func (c *Config) Delay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Millisecond
}

func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// TempoSourceFor builds the tempo source the configuration asks for.
func (c *Config) TempoSourceFor() miditools.TempoSource {
	if c.TempoSource == TempoClock {
		return miditools.NewClockTempo(c.Tempo)
	}
	return miditools.FixedTempo(c.Tempo)
}

// Registry is the default registry, bending notes into the configured key
// signature when there is one.
func (c *Config) Registry() (*miditools.Registry, error) {
	ks, err := miditools.ParseKeySignature(c.KeySignature)
	if err != nil {
		return nil, err
	}
	reg := miditools.DefaultRegistry()
	if ks != 0 {
		reg.Constructor = miditools.KeySignatureConstructor(ks)
	}
	return reg, nil
}

// SessionOptions turns the configuration into session options around reg.
// A nil reg means c.Registry().
func (c *Config) SessionOptions(reg *miditools.Registry) ([]miditools.Option, error) {
	if reg == nil {
		var err error
		if reg, err = c.Registry(); err != nil {
			return nil, err
		}
	}
	return []miditools.Option{
		miditools.WithMaxDelay(c.Delay()),
		miditools.WithTranspose(c.Transpose),
		miditools.WithChannel(c.Channel),
		miditools.WithTempo(c.TempoSourceFor()),
		miditools.WithRegistry(reg),
	}, nil
}
