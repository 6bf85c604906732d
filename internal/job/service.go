package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/progress"
)

// Static errors for the download service.
var (
	// ErrNoGroups is returned when a job is requested without group IDs.
	ErrNoGroups = errors.New("at least one group ID is required")
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
)

// Downloader runs a bulk download.
type Downloader interface {
	Download(ctx context.Context, groupIDs []int, reporter progress.Reporter) (bulk.Result, error)
}

// DownloadService starts bulk downloads in the background and tracks them
// as jobs.
type DownloadService struct {
	repo       Repository
	downloader Downloader
	logger     *slog.Logger
	reporter   progress.Reporter

	mu      sync.Mutex
	running map[string]*runningJob
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDownloadService creates a DownloadService.
func NewDownloadService(repo Repository, downloader Downloader, logger *slog.Logger) *DownloadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadService{
		repo:       repo,
		downloader: downloader,
		logger:     logger,
		reporter:   progress.Noop{},
		running:    make(map[string]*runningJob),
	}
}

// SetReporter adds an observer that sees every job's progress updates,
// tagged with the job ID.
func (s *DownloadService) SetReporter(r progress.Reporter) {
	s.reporter = progress.OrNoop(r)
}

// Start persists a new job and runs it in the background. The job outlives
// ctx; use Cancel to stop it.
func (s *DownloadService) Start(ctx context.Context, groupIDs []int) (*Job, error) {
	if len(groupIDs) == 0 {
		return nil, ErrNoGroups
	}

	job := New(groupIDs)
	s.logger.Info("creating download job",
		slog.String("job_id", job.ID),
		slog.Any("group_ids", groupIDs),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rj := &runningJob{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[job.ID] = rj
	s.mu.Unlock()

	snapshot := job.Clone()
	go s.run(runCtx, job, rj)

	return snapshot, nil
}

func (s *DownloadService) run(ctx context.Context, job *Job, rj *runningJob) {
	defer func() {
		rj.cancel()
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
		close(rj.done)
	}()

	log := s.logger.With(slog.String("job_id", job.ID))

	if ctx.Err() != nil {
		_ = job.Cancel()
		s.save(job, log)
		return
	}

	if err := job.Start(); err != nil {
		log.Error("failed to start job", slog.String("error", err.Error()))
		return
	}
	s.save(job, log)

	reporter := progress.Func(func(u progress.Update) {
		u.JobID = job.ID
		job.ApplyUpdate(u)
		s.save(job, log)
		s.reporter.Report(u)
	})

	result, err := s.downloader.Download(ctx, job.GroupIDs, reporter)
	job.ApplyResult(result)

	switch {
	case result.Cancelled || errors.Is(err, context.Canceled):
		_ = job.Cancel()
		log.Info("download job cancelled", slog.Int("stored", result.Stored))
	case err != nil:
		_ = job.Fail(err.Error())
		log.Error("download job failed", slog.String("error", err.Error()))
	default:
		_ = job.Complete()
		log.Info("download job completed",
			slog.Int("total", result.Total),
			slog.Int("stored", result.Stored),
			slog.Int("failed", len(result.Failed)),
		)
	}
	s.save(job, log)
}

// save persists from the background goroutine, which has no caller context.
func (s *DownloadService) save(job *Job, log *slog.Logger) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		log.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// Get retrieves a job by ID.
func (s *DownloadService) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all jobs, newest first.
func (s *DownloadService) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Cancel stops a running job between units. Units already stored stay.
func (s *DownloadService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	rj, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		rj.cancel()
		return nil
	}

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.Status)
	}
	return nil
}

// Wait blocks until the job's background run has finished or ctx is done.
// A job that is not running returns immediately.
func (s *DownloadService) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	rj, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-rj.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every running job and waits for them to stop.
func (s *DownloadService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	jobs := make([]*runningJob, 0, len(s.running))
	for _, rj := range s.running {
		rj.cancel()
		jobs = append(jobs, rj)
	}
	s.mu.Unlock()

	for _, rj := range jobs {
		select {
		case <-rj.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
