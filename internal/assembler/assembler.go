// Package assembler turns a contiguous range of units into one WAV file:
// resolve each unit, decode it, check formats agree, concatenate and encode.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/recitation-api/internal/audio"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/progress"
	"github.com/maauso/recitation-api/internal/unit"
)

// Static errors for assembly.
var (
	// ErrInvalidRange is returned when start > end or either bound is outside
	// the group's known range.
	ErrInvalidRange = errors.New("assembler: invalid unit range")
	// ErrFormatMismatch is returned when decoded units disagree on channel
	// count or sample rate.
	ErrFormatMismatch = audio.ErrFormatMismatch
)

// Stage names the step an assembly failed in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageDecode   Stage = "decode"
	StageConcat   Stage = "concat"
	StageEncode   Stage = "encode"
)

// AssemblyError reports which stage and, where relevant, which unit failed.
type AssemblyError struct {
	Stage     Stage
	GroupID   int
	UnitIndex int
	Err       error
}

func (e *AssemblyError) Error() string {
	if e.UnitIndex > 0 {
		return fmt.Sprintf("assemble group %d: %s unit %d: %v", e.GroupID, e.Stage, e.UnitIndex, e.Err)
	}
	return fmt.Sprintf("assemble group %d: %s: %v", e.GroupID, e.Stage, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Resolver returns a unit's compressed payload. A non-nil payload returned
// with an error was fetched but could not be cached and is still usable.
type Resolver interface {
	Resolve(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error)
}

// ChapterLookup reports a group's unit count.
type ChapterLookup interface {
	Chapter(ctx context.Context, id int) (catalog.Chapter, error)
}

// Request selects units StartUnit..EndUnit inclusive of one group.
type Request struct {
	GroupID   int
	StartUnit int
	EndUnit   int
	// WriteThrough caches fetched units permanently.
	WriteThrough bool
	// Progress, when set, receives one update per decoded unit.
	Progress progress.Reporter
}

// Units returns the number of units the request covers.
func (r Request) Units() int {
	return r.EndUnit - r.StartUnit + 1
}

// FileName names the exported segment, e.g. quran_002_255-257.wav.
func (r Request) FileName() string {
	return fmt.Sprintf("quran_%03d_%03d-%03d.wav", r.GroupID, r.StartUnit, r.EndUnit)
}

// DownloadName is the attachment name offered to clients.
const DownloadName = "quran.wav"

// Assembler builds WAV segments.
type Assembler struct {
	resolver Resolver
	decoder  audio.Decoder
	chapters ChapterLookup
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCatalog bounds requests by the group's unit count.
func WithCatalog(c ChapterLookup) Option {
	return func(a *Assembler) {
		a.chapters = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Assembler.
func New(r Resolver, d audio.Decoder, opts ...Option) *Assembler {
	a := &Assembler{
		resolver: r,
		decoder:  d,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the encoded WAV bytes for req. It aborts on the first
// failing unit; nothing partial is returned.
func (a *Assembler) Assemble(ctx context.Context, req Request) ([]byte, error) {
	buf, err := a.AssembleBuffer(ctx, req)
	if err != nil {
		return nil, err
	}

	out, err := audio.EncodeWAV(buf)
	if err != nil {
		return nil, &AssemblyError{Stage: StageEncode, GroupID: req.GroupID, Err: err}
	}

	a.logger.Info("segment assembled",
		"group_id", req.GroupID,
		"start_unit", req.StartUnit,
		"end_unit", req.EndUnit,
		"frames", buf.Frames(),
		"bytes", len(out),
	)
	return out, nil
}

// AssembleBuffer resolves and decodes every unit in order and returns the
// concatenated samples without encoding them.
func (a *Assembler) AssembleBuffer(ctx context.Context, req Request) (*audio.Buffer, error) {
	if err := a.validate(ctx, req); err != nil {
		return nil, err
	}

	reporter := progress.OrNoop(req.Progress)
	bufs := make([]*audio.Buffer, 0, req.Units())

	for i := req.StartUnit; i <= req.EndUnit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &AssemblyError{Stage: StageResolve, GroupID: req.GroupID, UnitIndex: i, Err: err}
		}

		data, err := a.resolver.Resolve(ctx, req.GroupID, i, req.WriteThrough)
		if err != nil && data != nil {
			// fetched but not cached; the segment can still be built
			a.logger.Warn("segment unit not cached", "group_id", req.GroupID, "unit_index", i, "error", err)
			err = nil
		}
		if err != nil {
			a.logger.Warn("segment unit unavailable", "group_id", req.GroupID, "unit_index", i, "error", err)
			return nil, &AssemblyError{Stage: StageResolve, GroupID: req.GroupID, UnitIndex: i, Err: err}
		}

		buf, err := a.decoder.Decode(ctx, data)
		if err != nil {
			a.logger.Warn("segment unit undecodable", "group_id", req.GroupID, "unit_index", i, "error", err)
			return nil, &AssemblyError{Stage: StageDecode, GroupID: req.GroupID, UnitIndex: i, Err: err}
		}
		bufs = append(bufs, buf)

		reporter.Report(progress.NewUpdate("", len(bufs), req.Units(),
			fmt.Sprintf("unit %d of group %d", i, req.GroupID), nil))
	}

	if err := audio.CheckFormats(bufs); err != nil {
		var mm *audio.MismatchError
		if errors.As(err, &mm) {
			return nil, &AssemblyError{Stage: StageConcat, GroupID: req.GroupID, UnitIndex: req.StartUnit + mm.Index, Err: err}
		}
		return nil, &AssemblyError{Stage: StageConcat, GroupID: req.GroupID, Err: err}
	}

	out, err := audio.Concat(bufs)
	if err != nil {
		return nil, &AssemblyError{Stage: StageConcat, GroupID: req.GroupID, Err: err}
	}
	return out, nil
}

func (a *Assembler) validate(ctx context.Context, req Request) error {
	invalid := func(format string, args ...any) error {
		return &AssemblyError{
			Stage:   StageValidate,
			GroupID: req.GroupID,
			Err:     fmt.Errorf("%w: %s", ErrInvalidRange, fmt.Sprintf(format, args...)),
		}
	}

	if req.GroupID < 1 || req.GroupID > unit.MaxID {
		return invalid("group %d outside 1..%d", req.GroupID, unit.MaxID)
	}
	if req.StartUnit < 1 || req.StartUnit > req.EndUnit {
		return invalid("start %d, end %d", req.StartUnit, req.EndUnit)
	}

	limit := unit.MaxID
	if a.chapters != nil {
		ch, err := a.chapters.Chapter(ctx, req.GroupID)
		if err != nil {
			return &AssemblyError{Stage: StageValidate, GroupID: req.GroupID, Err: err}
		}
		limit = ch.UnitCount
	}
	if req.EndUnit > limit {
		return invalid("end %d beyond last unit %d", req.EndUnit, limit)
	}
	return nil
}
