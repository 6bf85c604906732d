// Package catalog answers read-only questions about chapters and verses:
// how many units a group has, what it is called and its verse text.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrChapterNotFound is returned for a group ID the catalog does not know.
var ErrChapterNotFound = errors.New("catalog: chapter not found")

// Chapter describes one group.
type Chapter struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	UnitCount int    `json:"unit_count"`
}

// Verse is one unit's text.
type Verse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Catalog is the metadata query service.
type Catalog interface {
	// ListChapters returns every chapter ordered by ID.
	ListChapters(ctx context.Context) ([]Chapter, error)
	// Chapter returns one chapter or ErrChapterNotFound.
	Chapter(ctx context.Context, id int) (Chapter, error)
	// ListVerses returns the chapter's verses with Index >= from, ordered
	// by index. from <= 1 returns all of them.
	ListVerses(ctx context.Context, groupID, from int) ([]Verse, error)
	Close() error
}

// StaticCatalog is an in-memory Catalog.
type StaticCatalog struct {
	mu       sync.RWMutex
	chapters map[int]Chapter
	verses   map[int][]Verse
}

// NewStatic builds a catalog from chapters. Verse text may be added later
// with SetVerses.
func NewStatic(chapters ...Chapter) *StaticCatalog {
	c := &StaticCatalog{
		chapters: make(map[int]Chapter, len(chapters)),
		verses:   make(map[int][]Verse),
	}
	for _, ch := range chapters {
		c.chapters[ch.ID] = ch
	}
	return c
}

// SetVerses replaces the verse text of a chapter.
func (c *StaticCatalog) SetVerses(groupID int, verses []Verse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]Verse(nil), verses...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Index < cp[j].Index })
	c.verses[groupID] = cp
}

func (c *StaticCatalog) ListChapters(_ context.Context) ([]Chapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Chapter, 0, len(c.chapters))
	for _, ch := range c.chapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *StaticCatalog) Chapter(_ context.Context, id int) (Chapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chapters[id]
	if !ok {
		return Chapter{}, ErrChapterNotFound
	}
	return ch, nil
}

func (c *StaticCatalog) ListVerses(_ context.Context, groupID, from int) ([]Verse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.chapters[groupID]; !ok {
		return nil, ErrChapterNotFound
	}
	out := []Verse{}
	for _, v := range c.verses[groupID] {
		if v.Index >= from {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *StaticCatalog) Close() error { return nil }

// Compile-time checks.
var (
	_ Catalog = (*StaticCatalog)(nil)
	_ Catalog = (*SQLiteCatalog)(nil)
)
