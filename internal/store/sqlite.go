package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/maauso/recitation-api/internal/unit"
)

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists units in a SQLite database. PRAGMA user_version
// records the layout version.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and brings its
// layout up to the current version.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("init", "", fmt.Errorf("open sqlite db: %w", err))
	}
	// One writer at a time; each call is its own transaction.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, storageErr("init", "", fmt.Errorf("apply pragma %q: %w", pragma, execErr))
		}
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("init", "", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// migrate replaces the legacy collection with the current one. A database
// already at or beyond schemaVersion only gets the current table ensured,
// so a newer layout is left intact.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < schemaVersion {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+collectionLegacy); err != nil {
			return fmt.Errorf("drop legacy collection: %w", err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + collectionUnits + ` (
            ayah_id TEXT PRIMARY KEY,
            surah   INTEGER NOT NULL,
            ayah    INTEGER NOT NULL,
            data    BLOB NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_ayahs_surah ON ` + collectionUnits + ` (surah, ayah)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	if version < schemaVersion {
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	if version != 0 && version < schemaVersion {
		s.logger.Info("migrated unit store",
			slog.String("path", s.path),
			slog.Int("from_version", version),
			slog.Int("to_version", schemaVersion),
		)
	}
	return nil
}

// Put upserts u by unit key.
func (s *SQLiteStore) Put(ctx context.Context, u unit.AudioUnit) error {
	key, err := unit.Key(u.GroupID, u.UnitIndex)
	if err != nil {
		return storageErr("put", u.Key, err)
	}
	data := u.Data
	if data == nil {
		data = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ayahs (ayah_id, surah, ayah, data) VALUES (?, ?, ?, ?)
         ON CONFLICT(ayah_id) DO UPDATE SET surah = excluded.surah, ayah = excluded.ayah, data = excluded.data`,
		key, u.GroupID, u.UnitIndex, data,
	)
	return storageErr("put", key, err)
}

// Get returns the stored payload, or nil if the unit is absent.
func (s *SQLiteStore) Get(ctx context.Context, groupID, unitIndex int) ([]byte, error) {
	key, err := unit.Key(groupID, unitIndex)
	if err != nil {
		return nil, storageErr("get", "", err)
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM ayahs WHERE ayah_id = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// ListGroups returns the distinct stored group IDs, ascending.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]int, error) {
	ids, err := s.queryInts(ctx, `SELECT DISTINCT surah FROM ayahs ORDER BY surah`)
	return ids, storageErr("list groups", "", err)
}

// ListUnitIndices returns the stored indices of a group, ascending.
func (s *SQLiteStore) ListUnitIndices(ctx context.Context, groupID int) ([]int, error) {
	ids, err := s.queryInts(ctx, `SELECT ayah FROM ayahs WHERE surah = ? ORDER BY ayah`, groupID)
	return ids, storageErr("list units", unit.GroupPrefix(groupID), err)
}

// DeleteGroup removes every unit of a group.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ayahs WHERE surah = ?`, groupID)
	return storageErr("delete group", unit.GroupPrefix(groupID), err)
}

// ClearAll removes every unit.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ayahs`)
	return storageErr("clear", "", err)
}

// Count returns the number of stored units.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ayahs`).Scan(&n); err != nil {
		return 0, storageErr("count", "", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) queryInts(ctx context.Context, query string, args ...any) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
