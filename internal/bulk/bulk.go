// Package bulk downloads whole groups into the persistent store for offline
// use, tolerating individual unit failures.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/progress"
)

// Static errors for bulk downloads.
var (
	// ErrOffline is returned before any work when there is no connectivity.
	ErrOffline = errors.New("bulk: offline")
	// ErrNoGroups is returned when no group IDs were requested.
	ErrNoGroups = errors.New("bulk: no groups requested")
	// ErrPartialFailure is returned by Result.Err when some units failed.
	ErrPartialFailure = errors.New("bulk: some units failed")
)

// Resolver resolves a unit, writing fetched units through to the store.
// Any error, including a failed write-through, means the unit was not
// stored.
type Resolver interface {
	Resolve(ctx context.Context, groupID, unitIndex int, writeThrough bool) ([]byte, error)
}

// ChapterLookup reports a group's unit count.
type ChapterLookup interface {
	Chapter(ctx context.Context, id int) (catalog.Chapter, error)
}

// FailedUnit records one unit that could not be stored.
type FailedUnit struct {
	GroupID   int    `json:"group_id"`
	UnitIndex int    `json:"unit_index"`
	Error     string `json:"error"`
}

// Result summarizes a bulk download.
type Result struct {
	Groups    []int        `json:"groups"`
	Total     int          `json:"total"`
	Attempted int          `json:"attempted"`
	Stored    int          `json:"stored"`
	Failed    []FailedUnit `json:"failed,omitempty"`
	Cancelled bool         `json:"cancelled"`
}

// Err returns ErrPartialFailure when any unit failed, nil otherwise.
func (r Result) Err() error {
	if len(r.Failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPartialFailure, len(r.Failed), r.Total)
	}
	return nil
}

// Downloader drives the resolver over every unit of the requested groups.
type Downloader struct {
	resolver Resolver
	chapters ChapterLookup
	conn     connectivity.Checker
	logger   *slog.Logger
}

// New creates a Downloader. A nil checker means always online.
func New(r Resolver, chapters ChapterLookup, conn connectivity.Checker, logger *slog.Logger) *Downloader {
	if conn == nil {
		conn = connectivity.Static(true)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		resolver: r,
		chapters: chapters,
		conn:     conn,
		logger:   logger,
	}
}

type plannedGroup struct {
	id    int
	units int
}

// Download stores every unit of groupIDs. Groups are deduplicated and
// processed in ascending order, units 1..count within each. Each unit
// attempt, successful or not, produces exactly one progress update. A
// cancelled context stops the run between units; already stored units
// stay stored and the returned Result has Cancelled set alongside
// ctx.Err().
func (d *Downloader) Download(ctx context.Context, groupIDs []int, reporter progress.Reporter) (Result, error) {
	reporter = progress.OrNoop(reporter)

	if !d.conn.Online(ctx) {
		return Result{}, ErrOffline
	}

	plan, err := d.plan(ctx, groupIDs)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	for _, g := range plan {
		res.Groups = append(res.Groups, g.id)
		res.Total += g.units
	}

	d.logger.Info("bulk download started", "groups", res.Groups, "total", res.Total)

	for _, g := range plan {
		for i := 1; i <= g.units; i++ {
			if err := ctx.Err(); err != nil {
				res.Cancelled = true
				d.logger.Info("bulk download cancelled",
					"attempted", res.Attempted,
					"stored", res.Stored,
					"total", res.Total,
				)
				return res, err
			}

			_, err := d.resolver.Resolve(ctx, g.id, i, true)
			res.Attempted++
			if err != nil {
				d.logger.Warn("bulk unit failed", "group_id", g.id, "unit_index", i, "error", err)
				res.Failed = append(res.Failed, FailedUnit{GroupID: g.id, UnitIndex: i, Error: err.Error()})
			} else {
				res.Stored++
			}

			reporter.Report(progress.NewUpdate("", res.Attempted, res.Total,
				fmt.Sprintf("verse %d/%d of chapter %d", i, g.units, g.id), err))
		}
	}

	d.logger.Info("bulk download finished",
		"total", res.Total,
		"stored", res.Stored,
		"failed", len(res.Failed),
	)
	return res, nil
}

// plan resolves unit counts for every requested group before any fetch.
func (d *Downloader) plan(ctx context.Context, groupIDs []int) ([]plannedGroup, error) {
	if len(groupIDs) == 0 {
		return nil, ErrNoGroups
	}

	seen := make(map[int]struct{}, len(groupIDs))
	ids := make([]int, 0, len(groupIDs))
	for _, id := range groupIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	plan := make([]plannedGroup, 0, len(ids))
	for _, id := range ids {
		ch, err := d.chapters.Chapter(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", id, err)
		}
		plan = append(plan, plannedGroup{id: id, units: ch.UnitCount})
	}
	return plan, nil
}
