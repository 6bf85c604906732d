// Package audio decodes compressed recitation payloads into raw float
// samples, concatenates decoded units and encodes the result as 16-bit PCM
// WAV.
package audio

import (
	"errors"
	"fmt"
)

// Static errors for buffer operations.
var (
	// ErrEmptyBuffer is returned when there is nothing to concatenate or encode.
	ErrEmptyBuffer = errors.New("audio: empty buffer")
	// ErrInvalidBuffer is returned for a buffer with no channels, a
	// non-positive sample rate or ragged channel lengths.
	ErrInvalidBuffer = errors.New("audio: invalid buffer")
	// ErrFormatMismatch is returned when buffers to concatenate disagree on
	// channel count or sample rate.
	ErrFormatMismatch = errors.New("audio: format mismatch")
)

// Format is the shape shared by buffers that may be concatenated.
type Format struct {
	Channels   int
	SampleRate int
}

func (f Format) String() string {
	return fmt.Sprintf("%dch@%dHz", f.Channels, f.SampleRate)
}

// Buffer is decoded, uncompressed audio: one slice of samples in [-1, 1]
// per channel, all the same length.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	b := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range b.Channels {
		b.Channels[c] = make([]float32, frames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Format returns the buffer's channel count and sample rate.
func (b *Buffer) Format() Format {
	return Format{Channels: b.NumChannels(), SampleRate: b.SampleRate}
}

// Validate checks the buffer invariants.
func (b *Buffer) Validate() error {
	if b == nil || len(b.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidBuffer)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidBuffer, b.SampleRate)
	}
	n := len(b.Channels[0])
	for c, ch := range b.Channels {
		if len(ch) != n {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d", ErrInvalidBuffer, c, len(ch), n)
		}
	}
	return nil
}

// MismatchError identifies the first buffer whose format disagrees with the
// first buffer of a concatenation.
type MismatchError struct {
	Index int
	Want  Format
	Got   Format
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("audio: format mismatch at buffer %d: got %s, want %s", e.Index, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error {
	return ErrFormatMismatch
}

// CheckFormats verifies every buffer matches the first one's format.
func CheckFormats(bufs []*Buffer) error {
	if len(bufs) == 0 {
		return ErrEmptyBuffer
	}
	for i, b := range bufs {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
	}
	want := bufs[0].Format()
	for i, b := range bufs[1:] {
		if got := b.Format(); got != want {
			return &MismatchError{Index: i + 1, Want: want, Got: got}
		}
	}
	return nil
}

// Concat joins buffers end to end. Buffer i's samples start exactly where
// buffer i-1's end, in every channel. Formats must agree; no resampling
// is attempted.
func Concat(bufs []*Buffer) (*Buffer, error) {
	if err := CheckFormats(bufs); err != nil {
		return nil, err
	}

	total := 0
	for _, b := range bufs {
		total += b.Frames()
	}

	first := bufs[0]
	out := NewBuffer(first.NumChannels(), total, first.SampleRate)
	offset := 0
	for _, b := range bufs {
		for c := range out.Channels {
			copy(out.Channels[c][offset:], b.Channels[c])
		}
		offset += b.Frames()
	}
	return out, nil
}
