package miditools

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"k8s.io/utils/clock"
)

// TapeBlock is how much audio Tape pulls per tick.
const TapeBlock = 20 * time.Millisecond

// PCMSource yields interleaved 16-bit stereo PCM. SynthSink is one.
type PCMSource interface {
	io.Reader
	SampleRate() int32
}

// Tape records src into w as a WAV file, pulling one block per TapeBlock of
// clk time, until ctx is done. The header sizes are written on return.
func Tape(ctx context.Context, clk clock.WithTicker, src PCMSource, w io.WriteSeeker) (err error) {
	rate := src.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("tape: sample rate %d", rate)
	}
	enc := wav.NewEncoder(w, int(rate), 16, 2, 1)
	defer func() { err = errors.Join(err, enc.Close()) }()

	frames := int(int64(rate) * int64(TapeBlock) / int64(time.Second))
	raw := make([]byte, frames*4)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: int(rate)},
		Data:           make([]int, 0, frames*2),
		SourceBitDepth: 16,
	}
	// header goes out before the first block
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("tape: %w", err)
	}

	ticker := clk.NewTicker(TapeBlock)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			n, rerr := io.ReadFull(src, raw)
			buf.Data = buf.Data[:0]
			for i := 0; i+1 < n; i += 2 {
				buf.Data = append(buf.Data, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
			}
			if werr := enc.Write(buf); werr != nil {
				return werr
			}
			if rerr != nil {
				return rerr
			}
		}
	}
}
