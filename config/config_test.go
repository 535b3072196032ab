package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JeanRibes/miditools/miditools"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Parallel()

	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 100*time.Millisecond, c.Delay())
	assert.Equal(t, log.InfoLevel, c.Level())
	require.NoError(t, c.Validate())
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := Parse(strings.NewReader(`
max_delay: 80
transpose: -1
tempo: 90
tempo_source: clock
key_signature: D major
channel: 2
midi:
  input: Keystation
soundfonts:
  dir: /usr/share/sounds/sf2
  default: FluidR3_GM
serial:
  port: /dev/ttyUSB0
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 80*time.Millisecond, c.Delay())
	assert.Equal(t, -1, c.Transpose)
	assert.Equal(t, uint8(2), c.Channel)
	assert.Equal(t, "Keystation", c.MIDI.Input)
	assert.Equal(t, "FluidR3_GM", c.Soundfonts.Default)
	assert.Equal(t, "/dev/ttyUSB0", c.Serial.Port)
	assert.Equal(t, 115200, c.Serial.Baud, "unset keys keep their default")
	assert.Equal(t, log.DebugLevel, c.Level())

	src := c.TempoSourceFor()
	assert.IsType(t, &miditools.ClockTempo{}, src)
	assert.Equal(t, 90.0, src.Tempo())
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("max_delay: 0\ntempo_source: midi\nchannel: 16\nkey_signature: H major\n"))
	require.Error(t, err)
	for _, want := range []string{"max_delay", "tempo_source", "channel", "key_signature"} {
		assert.ErrorContains(t, err, want)
	}

	_, err = Parse(strings.NewReader("tempo: [1"))
	assert.Error(t, err)
}

func TestLoadReportsPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tempo: -3\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, path)
}

func TestSessionOptions(t *testing.T) {
	t.Parallel()

	c := Default()
	c.KeySignature = "G major"
	c.Transpose = 1
	opts, err := c.SessionOptions(nil)
	require.NoError(t, err)

	s := miditools.NewSession(append(opts, miditools.WithLogger(log.New(os.Stderr)))...)
	require.NoError(t, s.Handle(0, 0x90, 65, 100))
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 78, pending[0].Pitch.MIDI)
	assert.Equal(t, 100*time.Millisecond, s.MaxDelay())
}

func TestRegistryCarriesKeySignature(t *testing.T) {
	t.Parallel()

	c := Default()
	c.KeySignature = "F major"
	reg, err := c.Registry()
	require.NoError(t, err)
	opts, err := c.SessionOptions(reg)
	require.NoError(t, err)

	s := miditools.NewSession(append(opts, miditools.WithLogger(log.New(io.Discard)))...)
	require.NoError(t, s.Handle(0, 0x90, 71, 100))
	require.Len(t, s.Pending(), 1)
	assert.Equal(t, 70, s.Pending()[0].Pitch.MIDI, "B becomes B flat")

	c.KeySignature = "nope"
	_, err = c.Registry()
	assert.Error(t, err)
}
