package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/maauso/recitation-api/internal/unit"
)

// Compile-time check that BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)

const (
	unitPrefix       = collectionUnits + "/"
	legacyPrefix     = collectionLegacy + "/"
	schemaVersionKey = "meta/schema_version"
)

// record is the persisted shape of a unit.
type record struct {
	UnitKey   string `msgpack:"unit_key"`
	GroupID   int    `msgpack:"group_id"`
	UnitIndex int    `msgpack:"unit_index"`
	Data      []byte `msgpack:"data"`
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's warnings and errors.
	Logger *slog.Logger
}

// BadgerStore persists units as msgpack records under "ayahs/<unit key>".
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens the BadgerDB store and migrates an older layout.
func OpenBadger(_ context.Context, opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, storageErr("init", "", errors.New("badger dir is required for on-disk mode"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogBadgerLogger{logger: logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, storageErr("init", "", fmt.Errorf("open badger: %w", err))
	}

	s := &BadgerStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, storageErr("init", "", err)
	}
	return s, nil
}

func (s *BadgerStore) migrate() error {
	version, err := s.readVersion()
	if err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}

	legacy, err := s.keysWithPrefix([]byte(legacyPrefix))
	if err != nil {
		return fmt.Errorf("scan legacy collection: %w", err)
	}
	if err := s.deleteKeys(legacy); err != nil {
		return fmt.Errorf("drop legacy collection: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(schemaVersion)))
	})
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if version != 0 || len(legacy) > 0 {
		s.logger.Info("migrated unit store",
			slog.Int("from_version", version),
			slog.Int("to_version", schemaVersion),
			slog.Int("legacy_records_dropped", len(legacy)),
		)
	}
	return nil
}

func (s *BadgerStore) readVersion() (int, error) {
	var version int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("parse schema version %q: %w", val, err)
			}
			version = v
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Put upserts u by unit key.
func (s *BadgerStore) Put(_ context.Context, u unit.AudioUnit) error {
	key, err := unit.Key(u.GroupID, u.UnitIndex)
	if err != nil {
		return storageErr("put", u.Key, err)
	}
	val, err := msgpack.Marshal(record{
		UnitKey:   key,
		GroupID:   u.GroupID,
		UnitIndex: u.UnitIndex,
		Data:      u.Data,
	})
	if err != nil {
		return storageErr("put", key, fmt.Errorf("encode record: %w", err))
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(unitPrefix+key), val)
	})
	return storageErr("put", key, err)
}

// Get returns the stored payload, or nil if the unit is absent.
func (s *BadgerStore) Get(_ context.Context, groupID, unitIndex int) ([]byte, error) {
	key, err := unit.Key(groupID, unitIndex)
	if err != nil {
		return nil, storageErr("get", "", err)
	}

	var rec record
	found := false
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(unitPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, storageErr("get", key, err)
	}
	if !found {
		return nil, nil
	}
	if rec.Data == nil {
		rec.Data = []byte{}
	}
	return rec.Data, nil
}

// ListGroups returns the distinct stored group IDs, ascending. Keys are
// zero-padded, so prefix iteration order is numeric order.
func (s *BadgerStore) ListGroups(_ context.Context) ([]int, error) {
	keys, err := s.keysWithPrefix([]byte(unitPrefix))
	if err != nil {
		return nil, storageErr("list groups", "", err)
	}
	groups := make([]int, 0)
	for _, k := range keys {
		g, _, err := unit.ParseKey(strings.TrimPrefix(string(k), unitPrefix))
		if err != nil {
			return nil, storageErr("list groups", string(k), err)
		}
		if n := len(groups); n == 0 || groups[n-1] != g {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// ListUnitIndices returns the stored indices of a group, ascending.
func (s *BadgerStore) ListUnitIndices(_ context.Context, groupID int) ([]int, error) {
	prefix := unit.GroupPrefix(groupID)
	keys, err := s.keysWithPrefix([]byte(unitPrefix + prefix))
	if err != nil {
		return nil, storageErr("list units", prefix, err)
	}
	indices := make([]int, 0, len(keys))
	for _, k := range keys {
		_, i, err := unit.ParseKey(strings.TrimPrefix(string(k), unitPrefix))
		if err != nil {
			return nil, storageErr("list units", string(k), err)
		}
		indices = append(indices, i)
	}
	return indices, nil
}

// DeleteGroup removes every unit of a group.
func (s *BadgerStore) DeleteGroup(_ context.Context, groupID int) error {
	prefix := unit.GroupPrefix(groupID)
	keys, err := s.keysWithPrefix([]byte(unitPrefix + prefix))
	if err != nil {
		return storageErr("delete group", prefix, err)
	}
	return storageErr("delete group", prefix, s.deleteKeys(keys))
}

// ClearAll removes every unit.
func (s *BadgerStore) ClearAll(_ context.Context) error {
	keys, err := s.keysWithPrefix([]byte(unitPrefix))
	if err != nil {
		return storageErr("clear", "", err)
	}
	return storageErr("clear", "", s.deleteKeys(keys))
}

// Count returns the number of stored units.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	keys, err := s.keysWithPrefix([]byte(unitPrefix))
	if err != nil {
		return 0, storageErr("count", "", err)
	}
	return len(keys), nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) keysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func (s *BadgerStore) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// slogBadgerLogger forwards badger warnings and errors to slog and drops
// its info and debug chatter.
type slogBadgerLogger struct {
	logger *slog.Logger
}

func (l slogBadgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l slogBadgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (slogBadgerLogger) Infof(string, ...interface{})  {}
func (slogBadgerLogger) Debugf(string, ...interface{}) {}
