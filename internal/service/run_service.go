package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/manifest"
	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
	"github.com/noah-isme/mooc-session-miner/pkg/jobs"
)

const (
	runJobType    = "course_run"
	runLockPrefix = "runlock:"
)

type runPipeline interface {
	Run(ctx context.Context, req models.RunRequest) (models.RunStats, error)
}

// RunServiceConfig sizes the run queue.
type RunServiceConfig struct {
	Workers    int
	QueueSize  int
	LockTTL    time.Duration
	RetryDelay time.Duration
}

// RunService queues course runs, executes them on a worker pool and keeps
// their status in memory.
type RunService struct {
	pipeline runPipeline
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	queue    *jobs.Queue
	lockTTL  time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewRunService constructs the service. Call Start before Submit.
func NewRunService(pipeline runPipeline, cache *CacheService, metrics *MetricsService, validate *validator.Validate, cfg RunServiceConfig, logger *zap.Logger) *RunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	svc := &RunService{
		pipeline: pipeline,
		cache:    cache,
		metrics:  metrics,
		validate: validate,
		lockTTL:  cfg.LockTTL,
		logger:   logger,
		runs:     make(map[string]*models.Run),
	}
	svc.queue = jobs.NewQueue("course-runs", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *RunService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop waits for the workers to exit.
func (s *RunService) Stop() { s.queue.Stop() }

// Submit validates and queues a run.
func (s *RunService) Submit(ctx context.Context, req models.RunRequest) (*models.Run, error) {
	run, err := s.register(req)
	if err != nil {
		return nil, err
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: runJobType, Payload: run.ID}); err != nil {
		s.mu.Lock()
		delete(s.runs, run.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrQueueFull.Code, appErrors.ErrQueueFull.Status, appErrors.ErrQueueFull.Message)
	}
	s.logger.Info("run queued", zap.String("run_id", run.ID), zap.String("name", req.Name))
	return run, nil
}

// Execute runs a request synchronously and returns its final record.
func (s *RunService) Execute(ctx context.Context, req models.RunRequest) (*models.Run, error) {
	run, err := s.register(req)
	if err != nil {
		return nil, err
	}
	if err := s.process(ctx, run.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, run.ID)
}

// Get returns a copy of a run record.
func (s *RunService) Get(_ context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	out := *run
	return &out, nil
}

// List returns every run, newest first.
func (s *RunService) List(_ context.Context) []models.Run {
	s.mu.RLock()
	out := make([]models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *RunService) register(req models.RunRequest) (*models.Run, error) {
	if err := manifest.Validate(s.validate, req); err != nil {
		return nil, err
	}
	run := &models.Run{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    models.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	out := *run
	return &out, nil
}

func (s *RunService) handle(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	return s.process(ctx, id)
}

// process runs one registered request. Only a held run lock is returned as an
// error so the queue retries it; every run outcome is recorded on the run.
func (s *RunService) process(ctx context.Context, id string) error {
	req, err := s.request(id)
	if err != nil {
		return err
	}

	lockKey := runLockPrefix + req.Name
	locked, err := s.cache.Lock(ctx, lockKey, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("lock run %s: %w", req.Name, err)
	}
	if !locked {
		return fmt.Errorf("run %s is already being processed", req.Name)
	}
	defer s.cache.Unlock(context.WithoutCancel(ctx), lockKey, id)

	started := time.Now().UTC()
	s.update(id, func(r *models.Run) {
		r.Status = models.RunStatusRunning
		r.StartedAt = &started
	})

	stats, runErr := s.pipeline.Run(ctx, req)
	status := runStatus(runErr)
	finished := time.Now().UTC()
	s.update(id, func(r *models.Run) {
		r.Status = status
		r.Stats = stats
		r.FinishedAt = &finished
		if runErr != nil {
			r.Error = runErr.Error()
		}
	})
	s.metrics.RecordRun(status, finished.Sub(started))

	fields := []zap.Field{zap.String("run_id", id), zap.String("name", req.Name), zap.String("status", string(status))}
	if runErr != nil {
		s.logger.Warn("run finished with error", append(fields, zap.Error(runErr))...)
	} else {
		s.logger.Info("run finished", fields...)
	}
	return nil
}

func (s *RunService) request(id string) (models.RunRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return models.RunRequest{}, fmt.Errorf("run %s not registered", id)
	}
	return run.Request, nil
}

func (s *RunService) update(id string, fn func(*models.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		fn(run)
	}
}

func runStatus(err error) models.RunStatus {
	switch {
	case err == nil:
		return models.RunStatusFinished
	case errors.Is(err, appErrors.ErrStorageWrite):
		return models.RunStatusPartial
	default:
		return models.RunStatusFailed
	}
}
