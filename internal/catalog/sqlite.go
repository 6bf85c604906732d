package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog reads the bundled quran.sqlite database:
//
//	quran_index(id_sura, sura, num_ayat)
//	quran_ayat(sura, ayah, text)
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLite opens the catalog database read-only and checks it has the
// expected tables.
func OpenSQLite(ctx context.Context, path string) (*SQLiteCatalog, error) {
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM quran_index").Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) ListChapters(ctx context.Context) ([]Chapter, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id_sura, sura, num_ayat FROM quran_index ORDER BY id_sura")
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Chapter
	for rows.Next() {
		var ch Chapter
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.UnitCount); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return out, nil
}

func (c *SQLiteCatalog) Chapter(ctx context.Context, id int) (Chapter, error) {
	var ch Chapter
	err := c.db.QueryRowContext(ctx,
		"SELECT id_sura, sura, num_ayat FROM quran_index WHERE id_sura = ?", id,
	).Scan(&ch.ID, &ch.Name, &ch.UnitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, fmt.Errorf("%w: %d", ErrChapterNotFound, id)
	}
	if err != nil {
		return Chapter{}, fmt.Errorf("get chapter %d: %w", id, err)
	}
	return ch, nil
}

func (c *SQLiteCatalog) ListVerses(ctx context.Context, groupID, from int) ([]Verse, error) {
	if _, err := c.Chapter(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT ayah, text FROM quran_ayat WHERE sura = ? AND ayah >= ? ORDER BY ayah", groupID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("list verses of %d: %w", groupID, err)
	}
	defer func() { _ = rows.Close() }()

	out := []Verse{}
	for rows.Next() {
		var v Verse
		if err := rows.Scan(&v.Index, &v.Text); err != nil {
			return nil, fmt.Errorf("scan verse: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verses of %d: %w", groupID, err)
	}
	return out, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
