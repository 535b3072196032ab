package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
	"k8s.io/utils/clock"
)

const (
	DefaultBaud = 115200

	keyboardVelocity = 64
	controllerOn     = 64
)

// Keymap maps keyboard key codes to MIDI notes. A negative value -n makes the
// key toggle controller n instead.
type Keymap map[int]int

// ParseKeymap reads one "code:note" pair per line. Blank lines and lines
// starting with # are skipped.
func ParseKeymap(r io.Reader) (Keymap, error) {
	km := Keymap{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, note, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("keymap line %d: missing ':'", n)
		}
		c, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", n, err)
		}
		v, err := strconv.Atoi(strings.TrimSpace(note))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", n, err)
		}
		if c < 0 || c > 255 || v < -127 || v > 127 {
			return nil, fmt.Errorf("keymap line %d: %d:%d out of range", n, c, v)
		}
		km[c] = v
	}
	return km, sc.Err()
}

func LoadKeymap(path string) (Keymap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeymap(f)
}

// DecodeFrame splits a two byte frame into its key code and whether the key
// went down. A clear top bit in the status byte means pressed.
func DecodeFrame(frame [2]byte) (code uint8, pressed bool) {
	return frame[1], frame[0]>>7 == 0
}

// Keyboard turns frames from a serial keyboard into MIDI messages.
type Keyboard struct {
	mu          sync.Mutex
	keymap      Keymap
	pressed     [256]bool
	controllers [256]bool
	clock       clock.PassiveClock
	start       time.Time
	logger      *log.Logger
}

func NewKeyboard(km Keymap, clk clock.PassiveClock, logger *log.Logger) *Keyboard {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Keyboard{keymap: km, clock: clk, start: clk.Now(), logger: logger.WithPrefix("serial")}
}

// Decode returns the message for frame. Auto-repeated presses, releases of
// controller keys and unassigned keys give nothing.
func (k *Keyboard) Decode(frame [2]byte) (midi.Message, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	code, pressed := DecodeFrame(frame)
	if k.pressed[code] && pressed {
		return nil, false
	}
	k.pressed[code] = pressed

	note, ok := k.keymap[int(code)]
	switch {
	case !ok:
		k.logger.Debug("unassigned", "code", code)
		return nil, false
	case note < 0:
		if !pressed {
			return nil, false
		}
		k.controllers[code] = !k.controllers[code]
		var value uint8
		if k.controllers[code] {
			value = controllerOn
		}
		return midi.ControlChange(0, uint8(-note), value), true
	case pressed:
		return midi.NoteOn(0, uint8(note), keyboardVelocity), true
	default:
		return midi.NoteOff(0, uint8(note)), true
	}
}

// Millis is the time since the keyboard was created, used as event timestamp.
func (k *Keyboard) Millis() int64 {
	return k.clock.Since(k.start).Milliseconds()
}

// OpenSerial opens a serial port. An empty name picks the first port found.
func OpenSerial(name string, baud int) (serial.Port, error) {
	if name == "" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, err
		}
		if len(ports) == 0 {
			return nil, errors.New("no serial ports found")
		}
		name = ports[0]
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// SerialPorts lists the serial ports of the machine.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// ListenSerial reads frames from r until it ends or ctx is done, and passes
// the decoded messages to handle. If r is an io.Closer it is closed when ctx
// is done so that a pending read returns.
func ListenSerial(ctx context.Context, r io.Reader, kb *Keyboard, handle MessageHandler) error {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}
	var frame [2]byte
	for {
		if _, err := io.ReadFull(r, frame[:]); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msg, ok := kb.Decode(frame)
		if !ok {
			continue
		}
		if err := handle(msg, kb.Millis()); err != nil {
			kb.logger.Error("handle", "msg", msg.String(), "err", err)
		}
	}
}
