package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV container constants.
const (
	wavHeaderSize     = 44
	wavFmtChunkSize   = 16
	wavFormatPCM      = 1
	wavBitDepth       = 16
	wavBytesPerSample = wavBitDepth / 8
)

// ErrTooLarge is returned when the PCM data would not fit a RIFF size field.
var ErrTooLarge = errors.New("audio: buffer too large for WAV container")

// EncodeWAV renders b as a canonical 44-byte-header, 16-bit PCM,
// little-endian WAV file with interleaved samples.
func EncodeWAV(b *Buffer) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	channels := b.NumChannels()
	frames := b.Frames()
	dataLen := uint64(frames) * uint64(channels) * wavBytesPerSample
	if dataLen > math.MaxUint32-36 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, dataLen)
	}

	out := make([]byte, wavHeaderSize+int(dataLen))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], wavFmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(b.SampleRate*channels*wavBytesPerSample))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*wavBytesPerSample))
	binary.LittleEndian.PutUint16(out[34:36], wavBitDepth)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))

	off := wavHeaderSize
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(out[off:], uint16(SampleToInt16(b.Channels[c][i])))
			off += wavBytesPerSample
		}
	}
	return out, nil
}

// SampleToInt16 converts a float sample to 16-bit PCM. The input is clamped
// to [-1, 1]; negative values scale by 32768 and non-negative values by
// 32767, rounding to the nearest integer. NaN maps to 0.
func SampleToInt16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		v *= 32768
	} else {
		v *= 32767
	}
	v = math.Round(v)
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

// WAVDecoder decodes integer PCM WAV payloads in process.
type WAVDecoder struct{}

// Decode parses a WAV payload into a Buffer with samples scaled to [-1, 1).
func (WAVDecoder) Decode(_ context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Decoder: "wav", Err: ErrEmptyPayload}
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, &DecodeError{Decoder: "wav", Err: fmt.Errorf("%w: invalid WAV file", ErrUnsupportedFormat)}
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, &DecodeError{Decoder: "wav", Err: fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)}
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Decoder: "wav", Err: fmt.Errorf("read PCM data: %w", err)}
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels < 1 || bitDepth < 8 || bitDepth > 32 {
		return nil, &DecodeError{Decoder: "wav", Err: fmt.Errorf("%w: %d channels, %d-bit", ErrUnsupportedFormat, channels, bitDepth)}
	}

	buf := bufferFromPCM(pcm, channels, int(dec.SampleRate), bitDepth)
	if err := buf.Validate(); err != nil {
		return nil, &DecodeError{Decoder: "wav", Err: err}
	}
	return buf, nil
}

// bufferFromPCM de-interleaves integer PCM and scales it to [-1, 1).
func bufferFromPCM(pcm *goaudio.IntBuffer, channels, sampleRate, bitDepth int) *Buffer {
	frames := len(pcm.Data) / channels
	buf := NewBuffer(channels, frames, sampleRate)

	scale := float32(math.Ldexp(1, bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		// 8-bit WAV samples are unsigned.
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			buf.Channels[c][i] = float32(pcm.Data[i*channels+c]-offset) / scale
		}
	}
	return buf
}
