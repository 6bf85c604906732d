package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Static errors for decoding.
var (
	// ErrEmptyPayload is returned when a decoder is handed no bytes.
	ErrEmptyPayload = errors.New("audio: empty payload")
	// ErrUnsupportedFormat is returned when a payload is not in a format the
	// decoder understands.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
)

// Decoder turns a compressed payload into a Buffer.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Buffer, error)
}

// DecodeError wraps a failure from a named decoder.
type DecodeError struct {
	Decoder string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: %s decode failed: %v", e.Decoder, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SniffDecoder routes RIFF/WAVE payloads to an in-process WAV decoder and
// everything else to Fallback.
type SniffDecoder struct {
	WAV      Decoder
	Fallback Decoder
}

// NewSniffDecoder returns a SniffDecoder using WAVDecoder for WAV payloads.
func NewSniffDecoder(fallback Decoder) *SniffDecoder {
	return &SniffDecoder{WAV: WAVDecoder{}, Fallback: fallback}
}

// Decode implements Decoder.
func (d *SniffDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Decoder: "sniff", Err: ErrEmptyPayload}
	}
	if IsWAV(data) && d.WAV != nil {
		return d.WAV.Decode(ctx, data)
	}
	if d.Fallback == nil {
		return nil, &DecodeError{Decoder: "sniff", Err: fmt.Errorf("%w: no decoder for payload", ErrUnsupportedFormat)}
	}
	return d.Fallback.Decode(ctx, data)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

var (
	_ Decoder = WAVDecoder{}
	_ Decoder = (*SniffDecoder)(nil)
	_ Decoder = (*FFmpegDecoder)(nil)
)
