// Package store provides the persistent unit store: a durable, keyed store of
// recitation audio units with upsert, lookup, group listing and deletion.
// It defines the Store interface (port) and SQLite, Badger and in-memory
// implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/recitation-api/internal/unit"
)

// DatabaseName is the fixed identifier of the durable store.
const DatabaseName = "quran_audio_cache"

// schemaVersion is the current layout version. Version 1 kept payloads in a
// collection named "audio"; version 2 keeps them in "ayahs" keyed by unit key.
const schemaVersion = 2

const (
	collectionUnits  = "ayahs"
	collectionLegacy = "audio"
)

// Backend selects a Store implementation.
type Backend string

const (
	// BackendSQLite stores units in a single SQLite database file.
	BackendSQLite Backend = "sqlite"
	// BackendBadger stores units in a BadgerDB directory.
	BackendBadger Backend = "badger"
	// BackendMemory keeps units in process memory only.
	BackendMemory Backend = "memory"
)

// IsValid reports whether b names a known backend.
func (b Backend) IsValid() bool {
	return b == BackendSQLite || b == BackendBadger || b == BackendMemory
}

// ErrUnknownBackend is returned by Open for an unrecognised backend.
var ErrUnknownBackend = errors.New("store: unknown backend")

// Store is a keyed, durable store of audio units.
// Every operation is independently atomic.
type Store interface {
	// Put upserts u by its unit key. An existing unit with the same key is
	// overwritten.
	Put(ctx context.Context, u unit.AudioUnit) error

	// Get returns the payload for a unit, or nil (and no error) if absent.
	Get(ctx context.Context, groupID, unitIndex int) ([]byte, error)

	// ListGroups returns the distinct group IDs with at least one stored
	// unit, ascending.
	ListGroups(ctx context.Context) ([]int, error)

	// ListUnitIndices returns the stored unit indices of a group, ascending.
	ListUnitIndices(ctx context.Context, groupID int) ([]int, error)

	// DeleteGroup removes every unit of a group. Deleting a group with no
	// stored units succeeds.
	DeleteGroup(ctx context.Context, groupID int) error

	// ClearAll removes every stored unit.
	ClearAll(ctx context.Context) error

	// Count returns the number of stored units.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying handle.
	Close() error
}

// StorageError describes a failed store operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// Open creates the store for backend under dir, migrating an older layout
// in place. Failure to initialise is returned as a *StorageError.
func Open(ctx context.Context, backend Backend, dir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == BackendMemory {
		return NewMemoryStore(), nil
	}
	if !backend.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, storageErr("init", "", fmt.Errorf("create store directory: %w", err))
	}

	switch backend {
	case BackendBadger:
		return OpenBadger(ctx, BadgerOptions{
			Dir:    filepath.Join(dir, DatabaseName),
			Logger: logger,
		})
	default:
		return OpenSQLite(ctx, filepath.Join(dir, DatabaseName+".db"), logger)
	}
}
