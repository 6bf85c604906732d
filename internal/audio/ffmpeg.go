package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
)

// ErrFFprobeExecution is returned when ffprobe fails or reports no audio stream.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// Runner executes a command with stdin and returns its stdout. It exists so
// tests can stand in for the ffmpeg binaries.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	return f(ctx, name, args, stdin)
}

// FFmpegDecoder decodes any format ffmpeg understands (MP3 in practice) by
// piping the payload through ffprobe and ffmpeg.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
}

// FFmpegOption configures an FFmpegDecoder.
type FFmpegOption func(*FFmpegDecoder)

// WithRunner replaces the process runner.
func WithRunner(r Runner) FFmpegOption {
	return func(d *FFmpegDecoder) {
		d.runner = r
	}
}

// NewFFmpegDecoder creates a decoder. Empty paths default to "ffmpeg" and
// "ffprobe" found via PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string, opts ...FFmpegOption) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	d := &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode probes the payload's native channel count and sample rate, then
// has ffmpeg emit interleaved 32-bit float PCM at that format.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Decoder: "ffmpeg", Err: ErrEmptyPayload}
	}

	format, err := d.probe(ctx, data)
	if err != nil {
		return nil, &DecodeError{Decoder: "ffmpeg", Err: err}
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", fmt.Sprint(format.Channels),
		"-ar", fmt.Sprint(format.SampleRate),
		"pipe:1",
	}
	out, err := d.runner.Run(ctx, d.ffmpegPath, args, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &DecodeError{Decoder: "ffmpeg", Err: err}
	}

	buf, err := deinterleaveF32LE(out, format)
	if err != nil {
		return nil, &DecodeError{Decoder: "ffmpeg", Err: err}
	}
	return buf, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

func (d *FFmpegDecoder) probe(ctx context.Context, data []byte) (Format, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type,channels,sample_rate",
		"-of", "json",
		"pipe:0",
	}
	out, err := d.runner.Run(ctx, d.ffprobePath, args, data)
	if err != nil {
		if ctx.Err() != nil {
			return Format{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Format{}, fmt.Errorf("%w: %w", ErrFFprobeExecution, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Format{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Format{}, fmt.Errorf("%w: no audio stream", ErrFFprobeExecution)
	}

	s := probe.Streams[0]
	var rate int
	if _, err := fmt.Sscanf(s.SampleRate, "%d", &rate); err != nil {
		return Format{}, fmt.Errorf("parse sample rate %q: %w", s.SampleRate, err)
	}
	if s.Channels < 1 || rate <= 0 {
		return Format{}, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, s.Channels, rate)
	}
	return Format{Channels: s.Channels, SampleRate: rate}, nil
}

// deinterleaveF32LE splits little-endian interleaved float32 frames into
// per-channel slices.
func deinterleaveF32LE(raw []byte, format Format) (*Buffer, error) {
	frameSize := 4 * format.Channels
	if len(raw)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames", ErrUnsupportedFormat, len(raw), frameSize)
	}

	frames := len(raw) / frameSize
	buf := NewBuffer(format.Channels, frames, format.SampleRate)
	off := 0
	for i := 0; i < frames; i++ {
		for c := 0; c < format.Channels; c++ {
			buf.Channels[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
	}
	return buf, nil
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	// #nosec G204 - binary paths come from configuration, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &FFmpegError{
			Binary: name,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// FFmpegError represents a failed ffmpeg or ffprobe run, including stderr.
type FFmpegError struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Binary, e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
