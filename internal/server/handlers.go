package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/recitation-api/internal/assembler"
	"github.com/maauso/recitation-api/internal/audio"
	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/job"
	"github.com/maauso/recitation-api/internal/resolver"
	"github.com/maauso/recitation-api/internal/storage"
	"github.com/maauso/recitation-api/internal/store"
)

// SegmentAssembler builds WAV segments.
type SegmentAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) ([]byte, error)
}

// DownloadJobs runs and tracks bulk downloads.
type DownloadJobs interface {
	Start(ctx context.Context, groupIDs []int) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context) ([]*job.Job, error)
	Cancel(ctx context.Context, id string) error
}

// UnitCache is the part of the unit store the API manages.
type UnitCache interface {
	ListGroups(ctx context.Context) ([]int, error)
	ListUnitIndices(ctx context.Context, groupID int) ([]int, error)
	DeleteGroup(ctx context.Context, groupID int) error
	ClearAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Services groups the collaborators the handlers call.
type Services struct {
	Catalog      catalog.Catalog
	Assembler    SegmentAssembler
	Jobs         DownloadJobs
	Cache        UnitCache
	Export       storage.Storage
	Connectivity connectivity.Checker
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	svc       Services
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance. A nil Connectivity means
// always online.
func NewHandlers(svc Services, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if svc.Connectivity == nil {
		svc.Connectivity = connectivity.Static(true)
	}
	return &Handlers{
		svc:       svc,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Online: h.svc.Connectivity.Online(r.Context()),
	})
}

// ListChapters handles GET /chapters.
func (h *Handlers) ListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.svc.Catalog.ListChapters(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]ChapterResponse, 0, len(chapters))
	for _, ch := range chapters {
		resp = append(resp, toChapterResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListVerses handles GET /chapters/{id}/verses?from=N.
func (h *Handlers) ListVerses(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	from := 1
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "from must be a positive integer", "INVALID_QUERY")
			return
		}
		from = n
	}

	ch, err := h.svc.Catalog.Chapter(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	verses, err := h.svc.Catalog.ListVerses(r.Context(), groupID, from)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := VersesResponse{Chapter: toChapterResponse(ch), Verses: make([]VerseResponse, 0, len(verses))}
	for _, v := range verses {
		resp.Verses = append(resp.Verses, VerseResponse{Index: v.Index, Text: v.Text})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSegment handles POST /segments. The assembled WAV is returned as an
// attachment, or exported and its location returned when save is set.
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req SegmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	areq := assembler.Request{
		GroupID:      req.GroupID,
		StartUnit:    req.StartUnit,
		EndUnit:      req.EndUnit,
		WriteThrough: req.Cache,
	}
	wav, err := h.svc.Assembler.Assemble(r.Context(), areq)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if !req.Save {
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="`+assembler.DownloadName+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(wav); err != nil {
			h.logger.Warn("failed to write segment", slog.String("error", err.Error()))
		}
		return
	}

	name := areq.FileName()
	location, err := h.svc.Export.Save(r.Context(), name, bytes.NewReader(wav))
	if err != nil {
		h.logger.Error("failed to export segment",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save segment", "EXPORT_FAILED")
		return
	}

	h.logger.Info("segment exported", slog.String("location", location), slog.Int("bytes", len(wav)))
	writeJSON(w, http.StatusCreated, SegmentSavedResponse{Location: location, Name: name, Bytes: len(wav)})
}

// CreateDownload handles POST /downloads. Connectivity and group IDs are
// checked before the job is accepted.
func (h *Handlers) CreateDownload(w http.ResponseWriter, r *http.Request) {
	var req CreateDownloadRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if !h.svc.Connectivity.Online(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "an internet connection is required to download chapters", "OFFLINE")
		return
	}
	for _, g := range req.GroupIDs {
		if _, err := h.svc.Catalog.Chapter(r.Context(), g); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	created, err := h.svc.Jobs.Start(r.Context(), req.GroupIDs)
	if err != nil {
		h.logger.Error("failed to create download job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create download job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("download job created",
		slog.String("job_id", created.ID),
		slog.Any("group_ids", req.GroupIDs),
	)
	writeJSON(w, http.StatusAccepted, CreateDownloadResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// ListDownloads handles GET /downloads.
func (h *Handlers) ListDownloads(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.Jobs.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]DownloadResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toDownloadResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDownload handles GET /downloads/{id}.
func (h *Handlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.svc.Jobs.Get(r.Context(), jobID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDownloadResponse(found))
}

// CancelDownload handles DELETE /downloads/{id}. Units already stored are
// kept.
func (h *Handlers) CancelDownload(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.svc.Jobs.Cancel(r.Context(), jobID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("download job cancel requested", slog.String("job_id", jobID))
	writeJSON(w, http.StatusAccepted, CreateDownloadResponse{ID: jobID, Status: "CANCELLING"})
}

// GetCache handles GET /cache.
func (h *Handlers) GetCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.svc.Cache.ListGroups(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := CacheResponse{Groups: make([]CachedGroupResponse, 0, len(groups))}
	for _, g := range groups {
		indices, err := h.svc.Cache.ListUnitIndices(ctx, g)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		resp.Groups = append(resp.Groups, CachedGroupResponse{GroupID: g, Units: len(indices)})
	}

	if resp.TotalUnits, err = h.svc.Cache.Count(ctx); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCachedGroup handles GET /cache/groups/{id}.
func (h *Handlers) GetCachedGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	indices, err := h.svc.Cache.ListUnitIndices(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if indices == nil {
		indices = []int{}
	}
	writeJSON(w, http.StatusOK, CachedUnitsResponse{GroupID: groupID, UnitIndices: indices})
}

// DeleteCachedGroup handles DELETE /cache/groups/{id}. Deleting a group
// with nothing cached succeeds.
func (h *Handlers) DeleteCachedGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cache.DeleteGroup(r.Context(), groupID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("cached group deleted", slog.Int("group_id", groupID))
	w.WriteHeader(http.StatusNoContent)
}

// ClearCache handles DELETE /cache.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cache.ClearAll(r.Context()); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP statuses and codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var asmErr *assembler.AssemblyError
	if errors.As(err, &asmErr) {
		resp.Unit = asmErr.UnitIndex
		resp.Stage = string(asmErr.Stage)
	}

	var decErr *audio.DecodeError
	var status int
	switch {
	case errors.Is(err, assembler.ErrInvalidRange):
		status, resp.Code = http.StatusBadRequest, "INVALID_RANGE"
	case errors.Is(err, catalog.ErrChapterNotFound):
		status, resp.Code = http.StatusNotFound, "CHAPTER_NOT_FOUND"
	case errors.Is(err, job.ErrJobNotFound):
		status, resp.Code = http.StatusNotFound, "JOB_NOT_FOUND"
	case errors.Is(err, job.ErrJobFinished):
		status, resp.Code = http.StatusConflict, "JOB_FINISHED"
	case errors.Is(err, resolver.ErrOffline), errors.Is(err, bulk.ErrOffline):
		status, resp.Code = http.StatusServiceUnavailable, "OFFLINE"
	case errors.Is(err, resolver.ErrFetchFailed):
		status, resp.Code = http.StatusBadGateway, "FETCH_FAILED"
	case errors.Is(err, audio.ErrFormatMismatch):
		status, resp.Code = http.StatusUnprocessableEntity, "FORMAT_MISMATCH"
	case errors.As(err, &decErr):
		status, resp.Code = http.StatusUnprocessableEntity, "DECODE_FAILED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, resp.Code = http.StatusServiceUnavailable, "CANCELLED"
	default:
		var storeErr *store.StorageError
		if errors.Is(err, resolver.ErrStorage) || errors.As(err, &storeErr) {
			status, resp.Code = http.StatusInternalServerError, "STORAGE_ERROR"
		} else {
			status, resp.Code = http.StatusInternalServerError, "INTERNAL_ERROR"
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("code", resp.Code), slog.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer", "INVALID_ID")
		return 0, false
	}
	return id, true
}

func toChapterResponse(ch catalog.Chapter) ChapterResponse {
	return ChapterResponse{ID: ch.ID, Name: ch.Name, UnitCount: ch.UnitCount}
}

func toDownloadResponse(j *job.Job) DownloadResponse {
	resp := DownloadResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		GroupIDs:  j.GroupIDs,
		Total:     j.Total,
		Completed: j.Completed,
		Stored:    j.Stored,
		Progress:  j.Progress,
		Label:     j.Label,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}
	for _, f := range j.Failed {
		resp.Failed = append(resp.Failed, FailedUnitResponse{GroupID: f.GroupID, UnitIndex: f.UnitIndex, Error: f.Error})
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
