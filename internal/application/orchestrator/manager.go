package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event bus topics
const (
	// TopicJobs carries job.submitted events to the worker pool
	TopicJobs = "quiz.jobs"
	// TopicEvents carries every job and attempt event for observers
	TopicEvents = "quiz.events"
)

var (
	// ErrJobNotRunnable is returned by Begin for jobs that are no longer waiting for a worker
	ErrJobNotRunnable = errors.New("job is not runnable")
	// ErrJobTerminal is returned when cancelling a job that already finished
	ErrJobTerminal = errors.New("job already in terminal state")
)

const reasonShutdown = "service shutting down"

// Manager coordinates quiz job execution
type Manager struct {
	eventBus  ports.EventBus
	storage   ports.JobStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext

	timeBudget time.Duration
}

// executionContext holds state for a single job execution
type executionContext struct {
	jobID      string
	status     domain.JobStatus
	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// NewManager creates a new orchestrator manager
func NewManager(
	eventBus ports.EventBus,
	storage ports.JobStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	timeBudget time.Duration,
) *Manager {
	return &Manager{
		eventBus:   eventBus,
		storage:    storage,
		metrics:    metrics,
		validator:  validator,
		logger:     logger,
		timeBudget: timeBudget,
	}
}

// SubmitQuiz validates the request and queues a solving job
func (m *Manager) SubmitQuiz(ctx context.Context, req *domain.QuizRequest) (string, error) {
	if err := m.validator.Validate(req); err != nil {
		m.metrics.RecordJobSubmitted("rejected")
		return "", err
	}
	if err := m.validator.Authorize(req); err != nil {
		m.logger.Warn("quiz request rejected",
			zap.String("email", req.Email),
			zap.Error(err))
		m.metrics.RecordJobSubmitted("rejected")
		return "", err
	}

	now := time.Now()
	job := &domain.Job{
		ID:          uuid.New().String(),
		Email:       strings.TrimSpace(req.Email),
		Secret:      req.Secret,
		StartURL:    strings.TrimSpace(req.URL),
		Status:      domain.JobStatusSubmitted,
		SubmittedAt: now,
		Deadline:    now.Add(m.timeBudget),
	}

	if err := m.storage.SaveJob(ctx, job); err != nil {
		m.logger.Error("failed to save job",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	// Track before publishing so a fast worker always finds the execution context
	execCtx, cancel := context.WithDeadline(context.Background(), job.Deadline)
	ec := &executionContext{
		jobID:      job.ID,
		status:     domain.JobStatusSubmitted,
		ctx:        execCtx,
		cancelFunc: cancel,
	}
	m.executions.Store(job.ID, ec)

	event := m.newEvent(domain.EventTypeJobSubmitted, job.ID, map[string]interface{}{
		"url": job.StartURL,
	})
	if err := m.eventBus.Publish(ctx, TopicJobs, event); err != nil {
		m.logger.Error("failed to publish job submitted event",
			zap.String("job_id", job.ID),
			zap.Error(err))
		m.untrack(job.ID)
		m.finalize(context.Background(), job.ID, domain.JobStatusFailed, "failed to queue job")
		return "", fmt.Errorf("failed to publish event: %w", err)
	}
	m.emit(ctx, event)

	m.metrics.RecordJobSubmitted(string(domain.JobStatusSubmitted))
	m.metrics.SetActiveJobs(m.activeJobs())
	m.logger.Info("quiz job submitted",
		zap.String("job_id", job.ID),
		zap.String("email", job.Email),
		zap.String("quiz_url", job.StartURL),
		zap.Time("deadline", job.Deadline))

	// Start execution monitoring in background
	go m.monitorExecution(ec)

	return job.ID, nil
}

// Begin claims a submitted job for a worker and returns its execution
// context. Jobs submitted through another instance are claimed from
// storage and bounded by their stored deadline.
func (m *Manager) Begin(ctx context.Context, jobID string) (context.Context, error) {
	if val, ok := m.executions.Load(jobID); ok {
		ec := val.(*executionContext)
		ec.mu.Lock()
		defer ec.mu.Unlock()

		if ec.status != domain.JobStatusSubmitted {
			return nil, fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, jobID, ec.status)
		}
		ec.status = domain.JobStatusRunning
		return ec.ctx, nil
	}

	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status != domain.JobStatusSubmitted {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, jobID, job.Status)
	}

	execCtx, cancel := context.WithDeadline(context.Background(), job.Deadline)
	ec := &executionContext{
		jobID:      jobID,
		status:     domain.JobStatusRunning,
		ctx:        execCtx,
		cancelFunc: cancel,
	}
	if _, loaded := m.executions.LoadOrStore(jobID, ec); loaded {
		cancel()
		return nil, fmt.Errorf("%w: %s already claimed", ErrJobNotRunnable, jobID)
	}

	// The job may have been finalized between the read above and the claim
	job, err = m.storage.GetJob(ctx, jobID)
	if err != nil || job.Status != domain.JobStatusSubmitted {
		m.executions.CompareAndDelete(jobID, ec)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to get job: %w", err)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, jobID, job.Status)
	}

	m.metrics.SetActiveJobs(m.activeJobs())
	return execCtx, nil
}

// Finish releases the execution context of a job its worker has finalized
func (m *Manager) Finish(jobID string) {
	m.untrack(jobID)
	m.metrics.SetActiveJobs(m.activeJobs())
}

// GetJob retrieves a job
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first
func (m *Manager) ListJobs(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	jobs, err := m.storage.ListJobs(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// CancelJob cancels a job. A job still waiting for a worker is marked
// cancelled immediately; a running job has its context cancelled and its
// worker records the final status.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	val, ok := m.executions.Load(jobID)
	if !ok {
		return m.cancelUntracked(ctx, jobID)
	}

	ec := val.(*executionContext)
	ec.mu.Lock()
	defer ec.mu.Unlock()

	switch ec.status {
	case domain.JobStatusSubmitted:
		if err := m.stopQueued(ctx, ec, domain.JobStatusCancelled, "cancelled by user"); err != nil {
			return err
		}
	case domain.JobStatusRunning:
		ec.cancelFunc()
	default:
		return fmt.Errorf("%w: %s", ErrJobTerminal, ec.status)
	}

	m.logger.Info("quiz job cancellation requested",
		zap.String("job_id", jobID))

	return nil
}

func (m *Manager) cancelUntracked(ctx context.Context, jobID string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	switch {
	case job.Status.IsTerminal():
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	case job.Status == domain.JobStatusRunning:
		return fmt.Errorf("%w: %s is running on another instance", ErrJobNotRunnable, jobID)
	}

	return m.finalize(ctx, jobID, domain.JobStatusCancelled, "cancelled by user")
}

// monitorExecution times out jobs that are still waiting for a worker when
// their deadline passes
func (m *Manager) monitorExecution(ec *executionContext) {
	<-ec.ctx.Done()

	if !errors.Is(ec.ctx.Err(), context.DeadlineExceeded) {
		return
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status != domain.JobStatusSubmitted {
		return
	}

	m.logger.Warn("quiz job timed out before a worker picked it up",
		zap.String("job_id", ec.jobID))

	if err := m.stopQueued(context.Background(), ec, domain.JobStatusTimedOut, "execution timeout"); err != nil {
		m.logger.Error("failed to record job timeout",
			zap.String("job_id", ec.jobID),
			zap.Error(err))
	}
}

// stopQueued finalizes a tracked job no worker has claimed. The caller holds
// ec.mu, so Begin cannot claim the job until the terminal status is stored;
// tracking is dropped only afterwards. On a storage failure the job stays
// tracked as submitted.
func (m *Manager) stopQueued(ctx context.Context, ec *executionContext, status domain.JobStatus, reason string) error {
	err := m.finalize(ctx, ec.jobID, status, reason)
	if err != nil && !errors.Is(err, ErrJobTerminal) {
		return err
	}

	ec.status = status
	m.untrack(ec.jobID)
	m.metrics.SetActiveJobs(m.activeJobs())
	return err
}

// Fail records a failed status for a claimed job its worker could not run
func (m *Manager) Fail(ctx context.Context, jobID, reason string) error {
	if val, ok := m.executions.Load(jobID); ok {
		ec := val.(*executionContext)
		ec.mu.Lock()
		ec.status = domain.JobStatusFailed
		ec.mu.Unlock()
	}
	return m.finalize(ctx, jobID, domain.JobStatusFailed, reason)
}

// Abandon cancels a job dropped from a worker queue before any worker
// claimed it. Jobs that already moved on are left alone.
func (m *Manager) Abandon(ctx context.Context, jobID string) error {
	if val, ok := m.executions.Load(jobID); ok {
		ec := val.(*executionContext)
		ec.mu.Lock()
		defer ec.mu.Unlock()
		if ec.status != domain.JobStatusSubmitted {
			return nil
		}
		return m.stopQueued(ctx, ec, domain.JobStatusCancelled, reasonShutdown)
	}

	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status != domain.JobStatusSubmitted {
		return nil
	}
	err = m.finalize(ctx, jobID, domain.JobStatusCancelled, reasonShutdown)
	if errors.Is(err, ErrJobTerminal) {
		return nil
	}
	return err
}

// finalize stores a terminal status for a job no worker owns and publishes
// the matching event. A job already terminal in storage is never rewritten.
func (m *Manager) finalize(ctx context.Context, jobID string, status domain.JobStatus, reason string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}

	now := time.Now()
	job.Status = status
	job.Error = reason
	job.CompletedAt = &now

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	m.metrics.RecordJobFinished(string(status), now.Sub(job.SubmittedAt))
	m.emit(ctx, m.newEvent(domain.TerminalEventType(status), jobID, map[string]interface{}{
		"error": reason,
	}))
	return nil
}

// Emit publishes a job event for observers
func (m *Manager) Emit(ctx context.Context, eventType domain.EventType, jobID string, data map[string]interface{}) {
	m.emit(ctx, m.newEvent(eventType, jobID, data))
}

func (m *Manager) emit(ctx context.Context, event domain.Event) {
	if err := m.eventBus.Publish(ctx, TopicEvents, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("job_id", event.JobID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (m *Manager) newEvent(eventType domain.EventType, jobID string, data map[string]interface{}) domain.Event {
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *Manager) untrack(jobID string) {
	if val, ok := m.executions.LoadAndDelete(jobID); ok {
		val.(*executionContext).cancelFunc()
	}
}

func (m *Manager) activeJobs() int {
	n := 0
	m.executions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	// Queued jobs are recorded as cancelled; running ones are cancelled and
	// their workers record the outcome
	m.executions.Range(func(key, value interface{}) bool {
		ec := value.(*executionContext)
		ec.mu.Lock()
		defer ec.mu.Unlock()

		if ec.status != domain.JobStatusSubmitted {
			ec.cancelFunc()
			return true
		}
		if err := m.stopQueued(ctx, ec, domain.JobStatusCancelled, reasonShutdown); err != nil && !errors.Is(err, ErrJobTerminal) {
			m.logger.Error("failed to cancel queued job",
				zap.String("job_id", ec.jobID),
				zap.Error(err))
			ec.cancelFunc()
		}
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}
