// Package resolver returns unit payloads from the local store when present
// and falls back to the remote fetcher otherwise.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/fetch"
	"github.com/maauso/recitation-api/internal/store"
	"github.com/maauso/recitation-api/internal/unit"
)

// Kind classifies a resolve failure.
type Kind string

const (
	// KindOffline means the unit is not cached and there is no connectivity.
	KindOffline Kind = "offline"
	// KindFetchFailed means the unit is not cached and the remote fetch failed.
	KindFetchFailed Kind = "fetch_failed"
	// KindStorage means the store lookup itself failed.
	KindStorage Kind = "storage"
	// KindWriteFailed means the unit was fetched but could not be stored.
	// The payload is returned alongside the error.
	KindWriteFailed Kind = "write_failed"
)

// Sentinels matched with errors.Is against a *ResolveError.
var (
	ErrOffline     = errors.New("resolver: offline and unit not cached")
	ErrFetchFailed = errors.New("resolver: remote fetch failed")
	ErrStorage     = errors.New("resolver: store lookup failed")
	ErrWriteFailed = errors.New("resolver: write-through failed")
)

// ResolveError describes why a unit could not be resolved.
type ResolveError struct {
	Kind      Kind
	GroupID   int
	UnitIndex int
	Err       error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve unit %d:%d: %s: %v", e.GroupID, e.UnitIndex, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve unit %d:%d: %s", e.GroupID, e.UnitIndex, e.Kind)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Is maps the error kind onto the package sentinels.
func (e *ResolveError) Is(target error) bool {
	switch target {
	case ErrOffline:
		return e.Kind == KindOffline
	case ErrFetchFailed:
		return e.Kind == KindFetchFailed
	case ErrStorage:
		return e.Kind == KindStorage || e.Kind == KindWriteFailed
	case ErrWriteFailed:
		return e.Kind == KindWriteFailed
	}
	return false
}

// Stats counts resolver outcomes since construction.
type Stats struct {
	Hits        int64
	Misses      int64
	Fetches     int64
	WriteFailed int64
}

// Resolver implements cache-or-fetch lookups.
type Resolver struct {
	store   store.Store
	fetcher fetch.Fetcher
	conn    connectivity.Checker
	logger  *slog.Logger

	hits, misses, fetches, writeFailed atomic.Int64
}

// New creates a Resolver. A nil checker is treated as always online.
func New(s store.Store, f fetch.Fetcher, conn connectivity.Checker, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if conn == nil {
		conn = connectivity.Static(true)
	}
	return &Resolver{
		store:   s,
		fetcher: f,
		conn:    conn,
		logger:  logger,
	}
}

// Resolve returns the payload of a unit. A cached unit is returned without
// touching the network or the connectivity checker. On a miss the checker
// is sampled; offline fails with KindOffline before any fetch. A fetched
// payload is upserted into the store when writeThrough is set. A failed
// write returns the payload together with a KindWriteFailed error, so
// callers that only need the bytes can carry on.
func (r *Resolver) Resolve(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error) {
	key, err := unit.Key(groupID, unitIndex)
	if err != nil {
		return nil, err
	}

	data, err := r.store.Get(ctx, groupID, unitIndex)
	if err != nil {
		return nil, &ResolveError{Kind: KindStorage, GroupID: groupID, UnitIndex: unitIndex, Err: err}
	}
	if data != nil {
		r.hits.Add(1)
		r.logger.Debug("unit cache hit", slog.String("unit_key", key))
		return data, nil
	}
	r.misses.Add(1)

	if !r.conn.Online(ctx) {
		return nil, &ResolveError{Kind: KindOffline, GroupID: groupID, UnitIndex: unitIndex}
	}

	r.fetches.Add(1)
	data, err = r.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, &ResolveError{Kind: KindFetchFailed, GroupID: groupID, UnitIndex: unitIndex, Err: err}
	}

	if writeThrough {
		u := unit.AudioUnit{Key: key, GroupID: groupID, UnitIndex: unitIndex, Data: data}
		if err := r.store.Put(ctx, u); err != nil {
			r.writeFailed.Add(1)
			r.logger.Warn("write-through failed",
				slog.String("unit_key", key),
				slog.String("error", err.Error()),
			)
			return data, &ResolveError{Kind: KindWriteFailed, GroupID: groupID, UnitIndex: unitIndex, Err: err}
		}
	}

	r.logger.Debug("unit fetched",
		slog.String("unit_key", key),
		slog.Int("bytes", len(data)),
		slog.Bool("write_through", writeThrough),
	)
	return data, nil
}

// Online samples the connectivity checker.
func (r *Resolver) Online(ctx context.Context) bool {
	return r.conn.Online(ctx)
}

// Stats returns a snapshot of the outcome counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:        r.hits.Load(),
		Misses:      r.misses.Load(),
		Fetches:     r.fetches.Load(),
		WriteFailed: r.writeFailed.Load(),
	}
}
