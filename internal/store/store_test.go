package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/recitation-api/internal/unit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// backends returns a fresh store per implementation.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "units.db"), quietLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadger(context.Background(), BadgerOptions{InMemory: true, Logger: quietLogger()})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func mustUnit(t *testing.T, g, i int, data string) unit.AudioUnit {
	t.Helper()
	u, err := unit.New(g, i, []byte(data))
	require.NoError(t, err)
	return u
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			payload := []byte{0x49, 0x44, 0x33, 0x00, 0xff, 0x10}

			require.NoError(t, s.Put(ctx, unit.AudioUnit{GroupID: 2, UnitIndex: 14, Data: payload}))

			got, err := s.Get(ctx, 2, 14)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			got, err := s.Get(context.Background(), 1, 1)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 1, "first")))
			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 1, "second")))

			got, err := s.Get(ctx, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, "second", string(got))

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestStore_ListGroupsAndIndices(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			for _, u := range []unit.AudioUnit{
				mustUnit(t, 10, 3, "a"),
				mustUnit(t, 2, 2, "b"),
				mustUnit(t, 2, 1, "c"),
				mustUnit(t, 10, 1, "d"),
			} {
				require.NoError(t, s.Put(ctx, u))
			}

			groups, err := s.ListGroups(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 10}, groups)

			indices, err := s.ListUnitIndices(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 3}, indices)

			empty, err := s.ListUnitIndices(ctx, 7)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_DeleteGroup(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 1, "a")))
			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 2, "b")))
			require.NoError(t, s.Put(ctx, mustUnit(t, 2, 1, "c")))

			require.NoError(t, s.DeleteGroup(ctx, 1))

			indices, err := s.ListUnitIndices(ctx, 1)
			require.NoError(t, err)
			assert.Empty(t, indices)

			other, err := s.Get(ctx, 2, 1)
			require.NoError(t, err)
			assert.Equal(t, "c", string(other))

			// Deleting an absent group is a no-op.
			require.NoError(t, s.DeleteGroup(ctx, 99))
		})
	}
}

func TestStore_ClearAll(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 1, "a")))
			require.NoError(t, s.Put(ctx, mustUnit(t, 3, 4, "b")))
			require.NoError(t, s.ClearAll(ctx))

			groups, err := s.ListGroups(ctx)
			require.NoError(t, err)
			assert.Empty(t, groups)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_PutRejectsOutOfRangeKey(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			err := s.Put(context.Background(), unit.AudioUnit{GroupID: 1000, UnitIndex: 1})
			var se *StorageError
			require.True(t, errors.As(err, &se), "expected *StorageError, got %v", err)
			assert.ErrorIs(t, err, unit.ErrGroupOutOfRange)
		})
	}
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte("abc")
	require.NoError(t, s.Put(ctx, unit.AudioUnit{GroupID: 1, UnitIndex: 1, Data: data}))
	data[0] = 'z'

	got, err := s.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestOpenSQLite_MigratesLegacyLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE audio (id TEXT PRIMARY KEY, data BLOB)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO audio (id, data) VALUES ('001001', x'00')`)
	require.NoError(t, err)
	_, err = legacy.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := OpenSQLite(ctx, path, quietLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)

	var tables int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='audio'").Scan(&tables))
	assert.Zero(t, tables, "legacy collection should be dropped")

	require.NoError(t, s.Put(ctx, mustUnit(t, 1, 1, "new")))
	got, err := s.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestOpenSQLite_KeepsDataAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "units.db")

	s, err := OpenSQLite(ctx, path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, mustUnit(t, 5, 5, "durable")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, quietLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(ctx, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, "durable", string(got))
}

func TestOpenSQLite_NewerVersionLeftIntact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "newer.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`PRAGMA user_version = 7`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := OpenSQLite(ctx, path, quietLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 7, version)
}

func TestOpenBadger_MigratesLegacyLayout(t *testing.T) {
	dir := t.TempDir()

	raw, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, raw.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("audio/001001"), []byte("old")); err != nil {
			return err
		}
		return txn.Set([]byte("audio/001002"), []byte("old"))
	}))
	require.NoError(t, raw.Close())

	s, err := OpenBadger(context.Background(), BadgerOptions{Dir: dir, Logger: quietLogger()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	legacy, err := s.keysWithPrefix([]byte(legacyPrefix))
	require.NoError(t, err)
	assert.Empty(t, legacy)

	version, err := s.readVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []Backend{BackendSQLite, BackendBadger, BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			s, err := Open(ctx, backend, t.TempDir(), quietLogger())
			require.NoError(t, err)
			require.NoError(t, s.Put(ctx, mustUnit(t, 1, 2, "x")))
			require.NoError(t, s.Close())
		})
	}

	_, err := Open(ctx, Backend("indexeddb"), t.TempDir(), quietLogger())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
