package assembler

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/recitation-api/internal/audio"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/progress"
	"github.com/maauso/recitation-api/internal/resolver"
)

// mockResolver implements Resolver for testing.
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error) {
	args := m.Called(ctx, groupID, unitIndex, writeThrough)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// mapResolver serves payloads by unit index.
type mapResolver map[int][]byte

func (m mapResolver) Resolve(_ context.Context, _, unitIndex int, _ bool) ([]byte, error) {
	data, ok := m[unitIndex]
	if !ok {
		return nil, &resolver.ResolveError{Kind: resolver.KindOffline, UnitIndex: unitIndex}
	}
	return data, nil
}

// fakeDecoder reads a 4-byte header (frames uint16, rate/100 uint16) and
// fills every sample with the frame count so units are distinguishable.
type fakeDecoder struct{}

func payload(frames, rate int) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint16(out[0:], uint16(frames))
	binary.LittleEndian.PutUint16(out[2:], uint16(rate/100))
	return out
}

func (fakeDecoder) Decode(_ context.Context, data []byte) (*audio.Buffer, error) {
	if len(data) != 4 {
		return nil, &audio.DecodeError{Decoder: "fake", Err: audio.ErrUnsupportedFormat}
	}
	frames := int(binary.LittleEndian.Uint16(data[0:]))
	rate := int(binary.LittleEndian.Uint16(data[2:])) * 100
	buf := audio.NewBuffer(1, frames, rate)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = float32(frames) / 100
	}
	return buf, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAssembler(r Resolver) *Assembler {
	chapters := catalog.NewStatic(catalog.Chapter{ID: 1, Name: "Al-Fatihah", UnitCount: 7})
	return New(r, fakeDecoder{}, WithCatalog(chapters), WithLogger(testLogger()))
}

func TestAssemble_SingleUnit(t *testing.T) {
	a := newTestAssembler(mapResolver{3: payload(5, 8000)})

	buf, err := a.AssembleBuffer(context.Background(), Request{GroupID: 1, StartUnit: 3, EndUnit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, buf.Frames())

	out, err := a.Assemble(context.Background(), Request{GroupID: 1, StartUnit: 3, EndUnit: 3})
	require.NoError(t, err)
	assert.Len(t, out, 44+5*2)
}

func TestAssemble_OrderAndOffsets(t *testing.T) {
	a := newTestAssembler(mapResolver{
		1: payload(2, 8000),
		2: payload(3, 8000),
		3: payload(4, 8000),
	})

	buf, err := a.AssembleBuffer(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 3})
	require.NoError(t, err)
	require.Equal(t, 2+3+4, buf.Frames())

	samples := buf.Channels[0]
	for i := 0; i < 2; i++ {
		assert.Equal(t, float32(0.02), samples[i], "unit 1 at %d", i)
	}
	for i := 2; i < 5; i++ {
		assert.Equal(t, float32(0.03), samples[i], "unit 2 at %d", i)
	}
	for i := 5; i < 9; i++ {
		assert.Equal(t, float32(0.04), samples[i], "unit 3 at %d", i)
	}
}

func TestAssemble_SampleRateMismatch(t *testing.T) {
	a := newTestAssembler(mapResolver{
		1: payload(2, 8000),
		2: payload(2, 16000),
	})

	_, err := a.Assemble(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 2})
	require.ErrorIs(t, err, ErrFormatMismatch)

	var asmErr *AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, StageConcat, asmErr.Stage)
	assert.Equal(t, 2, asmErr.UnitIndex)
}

func TestAssemble_OfflineAbortsAndNamesUnit(t *testing.T) {
	r := &mockResolver{}
	r.On("Resolve", mock.Anything, 1, 1, false).Return(payload(2, 8000), nil)
	r.On("Resolve", mock.Anything, 1, 2, false).
		Return(nil, &resolver.ResolveError{Kind: resolver.KindOffline, GroupID: 1, UnitIndex: 2})

	a := newTestAssembler(r)
	_, err := a.Assemble(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 4})
	require.ErrorIs(t, err, resolver.ErrOffline)

	var asmErr *AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, StageResolve, asmErr.Stage)
	assert.Equal(t, 2, asmErr.UnitIndex)

	r.AssertNumberOfCalls(t, "Resolve", 2)
}

func TestAssemble_DecodeErrorIsFatal(t *testing.T) {
	a := newTestAssembler(mapResolver{
		1: payload(2, 8000),
		2: []byte("corrupt"),
		3: payload(2, 8000),
	})

	_, err := a.Assemble(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 3})
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)

	var asmErr *AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, StageDecode, asmErr.Stage)
	assert.Equal(t, 2, asmErr.UnitIndex)
}

func TestAssemble_PassesWriteThrough(t *testing.T) {
	r := &mockResolver{}
	r.On("Resolve", mock.Anything, 1, 1, true).Return(payload(1, 8000), nil)

	a := newTestAssembler(r)
	_, err := a.Assemble(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 1, WriteThrough: true})
	require.NoError(t, err)
	r.AssertExpectations(t)
}

func TestAssemble_InvalidRange(t *testing.T) {
	a := newTestAssembler(mapResolver{})

	tests := []struct {
		name string
		req  Request
	}{
		{name: "start after end", req: Request{GroupID: 1, StartUnit: 3, EndUnit: 2}},
		{name: "zero start", req: Request{GroupID: 1, StartUnit: 0, EndUnit: 2}},
		{name: "beyond chapter", req: Request{GroupID: 1, StartUnit: 1, EndUnit: 8}},
		{name: "bad group", req: Request{GroupID: 0, StartUnit: 1, EndUnit: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestAssemble_UnknownChapter(t *testing.T) {
	a := newTestAssembler(mapResolver{})

	_, err := a.Assemble(context.Background(), Request{GroupID: 9, StartUnit: 1, EndUnit: 1})
	assert.ErrorIs(t, err, catalog.ErrChapterNotFound)
}

func TestAssemble_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := resolverFunc(func(_ context.Context, _, i int, _ bool) ([]byte, error) {
		calls++
		if i == 2 {
			cancel()
		}
		return payload(1, 8000), nil
	})

	a := newTestAssembler(r)
	_, err := a.Assemble(ctx, Request{GroupID: 1, StartUnit: 1, EndUnit: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestAssemble_ReportsProgress(t *testing.T) {
	a := newTestAssembler(mapResolver{1: payload(1, 8000), 2: payload(1, 8000)})

	var updates []progress.Update
	_, err := a.Assemble(context.Background(), Request{
		GroupID:   1,
		StartUnit: 1,
		EndUnit:   2,
		Progress:  progress.Func(func(u progress.Update) { updates = append(updates, u) }),
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, 50, updates[0].Percent)
	assert.Equal(t, 100, updates[1].Percent)
}

func TestAssemblyError_Message(t *testing.T) {
	err := &AssemblyError{Stage: StageDecode, GroupID: 2, UnitIndex: 5, Err: errors.New("boom")}
	assert.Equal(t, "assemble group 2: decode unit 5: boom", err.Error())

	err = &AssemblyError{Stage: StageConcat, GroupID: 2, Err: errors.New("boom")}
	assert.Equal(t, "assemble group 2: concat: boom", fmt.Sprint(err))
}

type resolverFunc func(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error)

func (f resolverFunc) Resolve(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error) {
	return f(ctx, groupID, unitIndex, writeThrough)
}

func TestAssemble_UncachedUnitStillUsed(t *testing.T) {
	r := resolverFunc(func(_ context.Context, groupID, unitIndex int, _ bool) ([]byte, error) {
		err := &resolver.ResolveError{Kind: resolver.KindWriteFailed, GroupID: groupID, UnitIndex: unitIndex, Err: errors.New("disk full")}
		return payload(3, 8000), err
	})
	a := newTestAssembler(r)

	buf, err := a.AssembleBuffer(context.Background(), Request{GroupID: 1, StartUnit: 1, EndUnit: 2, WriteThrough: true})
	require.NoError(t, err)
	assert.Equal(t, 6, buf.Frames())
}

func TestRequest_FileName(t *testing.T) {
	req := Request{GroupID: 2, StartUnit: 255, EndUnit: 257}
	assert.Equal(t, "quran_002_255-257.wav", req.FileName())
	assert.Equal(t, 3, req.Units())
}
