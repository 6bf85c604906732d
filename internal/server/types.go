// Package server provides the HTTP API over the recitation cache: chapter
// metadata, segment assembly, bulk download jobs and cache management.
// DTOs here are kept separate from domain types.
package server

import "time"

// SegmentRequest is the body of POST /segments.
type SegmentRequest struct {
	GroupID   int `json:"group_id" validate:"required,min=1,max=999"`
	StartUnit int `json:"start_unit" validate:"required,min=1,max=999"`
	EndUnit   int `json:"end_unit" validate:"required,min=1,max=999,gtefield=StartUnit"`
	// Save exports the segment instead of returning its bytes.
	Save bool `json:"save"`
	// Cache keeps fetched units in the persistent store.
	Cache bool `json:"cache"`
}

// SegmentSavedResponse is returned when a segment was exported.
type SegmentSavedResponse struct {
	Location string `json:"location"`
	Name     string `json:"name"`
	Bytes    int    `json:"bytes"`
}

// CreateDownloadRequest is the body of POST /downloads.
type CreateDownloadRequest struct {
	GroupIDs []int `json:"group_ids" validate:"required,min=1,dive,min=1,max=999"`
}

// CreateDownloadResponse is the HTTP response after creating a download job.
type CreateDownloadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// FailedUnitResponse names one unit a download could not store.
type FailedUnitResponse struct {
	GroupID   int    `json:"group_id"`
	UnitIndex int    `json:"unit_index"`
	Error     string `json:"error"`
}

// DownloadResponse describes a bulk download job.
type DownloadResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	GroupIDs    []int                `json:"group_ids"`
	Total       int                  `json:"total"`
	Completed   int                  `json:"completed"`
	Stored      int                  `json:"stored"`
	Failed      []FailedUnitResponse `json:"failed,omitempty"`
	Progress    int                  `json:"progress"`
	Label       string               `json:"label,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// ChapterResponse describes one chapter.
type ChapterResponse struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	UnitCount int    `json:"unit_count"`
}

// VerseResponse is one verse's text.
type VerseResponse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// VersesResponse is the body of GET /chapters/{id}/verses.
type VersesResponse struct {
	Chapter ChapterResponse `json:"chapter"`
	Verses  []VerseResponse `json:"verses"`
}

// CachedGroupResponse summarizes one cached group.
type CachedGroupResponse struct {
	GroupID int `json:"group_id"`
	Units   int `json:"units"`
}

// CacheResponse is the body of GET /cache.
type CacheResponse struct {
	Groups     []CachedGroupResponse `json:"groups"`
	TotalUnits int                   `json:"total_units"`
}

// CachedUnitsResponse is the body of GET /cache/groups/{id}.
type CachedUnitsResponse struct {
	GroupID     int   `json:"group_id"`
	UnitIndices []int `json:"unit_indices"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Unit is the unit index an assembly failed on, when known.
	Unit int `json:"unit,omitempty"`
	// Stage is the assembly stage that failed, when known.
	Stage string `json:"stage,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
}
