package snd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 48000
	Channels   = 1
	// FrameSize is the sample count of one 20 ms frame per channel.
	FrameSize = 960
	// maxFrameSize covers the longest Opus frame, 120 ms.
	maxFrameSize = 6 * FrameSize
)

var ErrClosed = errors.New("decoder closed")

// FrameDecoder turns one Opus packet into interleaved samples and
// returns the per-channel sample count.
type FrameDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// Decoder converts one speaker's Opus frames into raw PCM written to a
// sink. The sink is closed exactly once, by Close.
type Decoder struct {
	frames FrameDecoder
	sink   io.WriteCloser

	mu     sync.Mutex
	pcm    []int16
	buf    []byte
	closed bool
	once   sync.Once
	err    error
}

// NewOpusDecoder decodes at SampleRate with Channels; stereo input is
// downmixed by libopus.
func NewOpusDecoder(sink io.WriteCloser) (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return NewDecoder(dec, sink), nil
}

func NewDecoder(frames FrameDecoder, sink io.WriteCloser) *Decoder {
	return &Decoder{
		frames: frames,
		sink:   sink,
		pcm:    make([]int16, maxFrameSize*Channels),
		buf:    make([]byte, maxFrameSize*Channels*2),
	}
}

// Write decodes one Opus frame and forwards the PCM. Decode and sink
// errors are returned to the caller.
func (d *Decoder) Write(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	n, err := d.frames.Decode(frame, d.pcm)
	if err != nil {
		return fmt.Errorf("failed to decode opus frame: %w", err)
	}

	samples := n * Channels
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(d.buf[i*2:], uint16(d.pcm[i]))
	}
	if _, err := d.sink.Write(d.buf[:samples*2]); err != nil {
		return fmt.Errorf("failed to write pcm: %w", err)
	}
	return nil
}

// Close signals end of input to the sink. Later calls return the
// result of the first.
func (d *Decoder) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.err = d.sink.Close()
	})
	return d.err
}
