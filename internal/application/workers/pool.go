package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	"github.com/aescanero/quizsolver/internal/application/solver"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"go.uber.org/zap"
)

// ConsumerGroup is the event bus group shared by every pool instance, so
// each submitted job is solved once
const ConsumerGroup = "quizsolver-workers"

const storeTimeout = 10 * time.Second

// Lifecycle is the part of the orchestrator a worker drives
type Lifecycle interface {
	Begin(ctx context.Context, jobID string) (context.Context, error)
	Finish(jobID string)
	Fail(ctx context.Context, jobID, reason string) error
	Abandon(ctx context.Context, jobID string) error
	Emit(ctx context.Context, eventType domain.EventType, jobID string, data map[string]interface{})
}

// JobSolver runs the quiz chain of a job
type JobSolver interface {
	Solve(ctx context.Context, job *domain.Job, progress solver.ProgressFunc) error
}

// Config holds pool settings
type Config struct {
	Size                int
	QueueSize           int
	HealthCheckInterval time.Duration
}

// Pool manages a pool of worker goroutines
type Pool struct {
	cfg       Config
	eventBus  ports.EventBus
	storage   ports.JobStorage
	lifecycle Lifecycle
	solver    JobSolver
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	health    *HealthMonitor

	queue   chan string
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	running bool
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool
func NewPool(
	cfg Config,
	eventBus ports.EventBus,
	storage ports.JobStorage,
	lifecycle Lifecycle,
	jobSolver JobSolver,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Size
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		cfg:       cfg,
		eventBus:  eventBus,
		storage:   storage,
		lifecycle: lifecycle,
		solver:    jobSolver,
		metrics:   metrics,
		logger:    logger,
		queue:     make(chan string, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	pool.health = NewHealthMonitor(pool, cfg.HealthCheckInterval, logger)

	return pool
}

// Start subscribes to submitted jobs and starts the workers
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.cfg.Size))

	if err := p.eventBus.Subscribe(p.ctx, orchestrator.TopicJobs, ConsumerGroup, p.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to jobs: %w", err)
	}

	workers := make([]*worker, p.cfg.Size)
	for i := range workers {
		workers[i] = &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
	}

	p.mu.Lock()
	p.workers = workers
	p.running = true
	p.mu.Unlock()

	for _, w := range workers {
		p.wg.Add(1)
		go w.run(p.ctx)
	}

	// Start health monitor
	p.health.Start(p.ctx)

	p.logger.Info("worker pool started", zap.Int("workers", p.cfg.Size))
	return nil
}

// enqueue hands a submitted job to the workers, blocking while the queue is full
func (p *Pool) enqueue(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventTypeJobSubmitted {
		return nil
	}

	select {
	case p.queue <- event.JobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	// Stop health monitor
	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}

	p.drain(ctx)

	p.logger.Info("worker pool shut down complete")
	return nil
}

// drain hands jobs left in the queue back to the orchestrator
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case jobID := <-p.queue:
			if err := p.lifecycle.Abandon(ctx, jobID); err != nil {
				p.logger.Error("failed to abandon queued job",
					zap.String("job_id", jobID),
					zap.Error(err))
			}
		default:
			return
		}
	}
}

// Health returns the pool health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// IsRunning reports whether the pool has started and not shut down
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	p.mu.RLock()
	workers := p.workers
	p.mu.RUnlock()

	status := make(map[string]WorkerStatus)
	for _, w := range workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
			return
		case jobID := <-w.pool.queue:
			w.handleJob(jobID)
		}
	}
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	if s == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
	w.mu.Unlock()
}

// handleJob claims a job, solves it and records the outcome
func (w *worker) handleJob(jobID string) {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	logger := w.pool.logger.With(zap.String("worker_id", w.id), zap.String("job_id", jobID))

	execCtx, err := w.pool.lifecycle.Begin(w.pool.ctx, jobID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrJobNotRunnable) {
			logger.Info("skipping job", zap.Error(err))
		} else {
			logger.Error("failed to claim job", zap.Error(err))
		}
		return
	}
	defer w.pool.lifecycle.Finish(jobID)

	job, err := w.pool.loadJob(jobID)
	if err != nil {
		logger.Error("failed to get job", zap.Error(err))
		w.fail(jobID, fmt.Sprintf("failed to load job: %v", err), logger)
		return
	}

	now := time.Now()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	if job.CurrentURL == "" {
		job.CurrentURL = job.StartURL
	}
	if err := w.pool.saveJob(job); err != nil {
		logger.Error("failed to save job", zap.Error(err))
		w.fail(jobID, fmt.Sprintf("failed to start job: %v", err), logger)
		return
	}
	w.pool.lifecycle.Emit(execCtx, domain.EventTypeJobStarted, jobID, map[string]interface{}{
		"worker_id": w.id,
		"url":       job.CurrentURL,
	})

	logger.Info("solving quiz chain", zap.String("quiz_url", job.CurrentURL))

	progress := func(attempt domain.Attempt, nextURL string) {
		job.Attempts = append(job.Attempts, attempt)
		if nextURL != "" {
			job.CurrentURL = nextURL
		}
		if err := w.pool.saveJob(job); err != nil {
			logger.Error("failed to save attempt", zap.Error(err))
		}
		w.pool.lifecycle.Emit(context.Background(), domain.EventTypeAttemptSubmitted, jobID, map[string]interface{}{
			"quiz_url": attempt.QuizURL,
			"correct":  attempt.Correct,
			"try":      attempt.Try,
			"reason":   attempt.Reason,
			"next_url": nextURL,
		})
	}

	solveErr := w.pool.solver.Solve(execCtx, job, progress)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	switch {
	case solveErr == nil:
		job.Status = domain.JobStatusCompleted
	case errors.Is(solveErr, context.DeadlineExceeded):
		job.Status = domain.JobStatusTimedOut
		job.Error = "execution timeout"
	case errors.Is(solveErr, context.Canceled):
		job.Status = domain.JobStatusCancelled
		job.Error = "cancelled"
	default:
		job.Status = domain.JobStatusFailed
		job.Error = solveErr.Error()
	}

	// Save final state
	if err := w.pool.saveJob(job); err != nil {
		logger.Error("failed to save final state", zap.Error(err))
	}

	data := map[string]interface{}{
		"attempts": len(job.Attempts),
		"correct":  job.CorrectCount(),
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	w.pool.lifecycle.Emit(context.Background(), domain.TerminalEventType(job.Status), jobID, data)

	duration := completedAt.Sub(job.SubmittedAt)
	w.pool.metrics.RecordJobFinished(string(job.Status), duration)

	logger.Info("quiz job finished",
		zap.String("status", string(job.Status)),
		zap.Int("attempts", len(job.Attempts)),
		zap.Int("correct", job.CorrectCount()),
		zap.Duration("duration", duration))
}

// fail records a claimed job that could not be run as failed
func (w *worker) fail(jobID, reason string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := w.pool.lifecycle.Fail(ctx, jobID, reason); err != nil {
		logger.Error("failed to record job failure", zap.Error(err))
	}
}

// Storage writes use their own timeout so the final state is recorded
// even after the execution context is done
func (p *Pool) loadJob(jobID string) (*domain.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return p.storage.GetJob(ctx, jobID)
}

func (p *Pool) saveJob(job *domain.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return p.storage.SaveJob(ctx, job)
}
