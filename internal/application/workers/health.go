package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus is a snapshot of the pool and its job queue
type HealthStatus struct {
	TotalWorkers   int       `json:"total_workers"`
	IdleWorkers    int       `json:"idle_workers"`
	BusyWorkers    int       `json:"busy_workers"`
	StoppedWorkers int       `json:"stopped_workers"`
	QueuedJobs     int       `json:"queued_jobs"`
	QueueCapacity  int       `json:"queue_capacity"`
	Saturated      bool      `json:"saturated"`
	Healthy        bool      `json:"healthy"`
	Timestamp      time.Time `json:"timestamp"`
}

// HealthMonitor periodically samples the pool, publishing worker gauges
// and logging health transitions
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	lastHealthy *bool
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start samples the pool until ctx is done or Stop is called
func (h *HealthMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.run(ctx, h.done)
}

// Stop ends sampling and waits for the loop to exit
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *HealthMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

// sample records worker gauges and logs when health flips
func (h *HealthMonitor) sample() {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)

	h.logger.Debug("worker pool health check",
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("queued", status.QueuedJobs),
		zap.Bool("healthy", status.Healthy))

	h.mu.Lock()
	changed := h.lastHealthy == nil || *h.lastHealthy != status.Healthy
	healthy := status.Healthy
	h.lastHealthy = &healthy
	h.mu.Unlock()

	switch {
	case changed && !status.Healthy:
		h.logger.Warn("worker pool became unhealthy",
			zap.Int("stopped", status.StoppedWorkers),
			zap.Int("total", status.TotalWorkers))
	case changed:
		h.logger.Info("worker pool healthy", zap.Int("total", status.TotalWorkers))
	}

	if status.Saturated {
		h.logger.Warn("job queue is full, submissions are waiting",
			zap.Int("busy", status.BusyWorkers),
			zap.Int("queue_capacity", status.QueueCapacity))
	}
}

// GetStatus returns the current health status. The pool is healthy while
// it is running and none of its workers has stopped. A saturated pool is
// still healthy since the bus holds back further jobs.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := &HealthStatus{
		QueuedJobs:    len(h.pool.queue),
		QueueCapacity: cap(h.pool.queue),
		Timestamp:     time.Now(),
	}

	for _, ws := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch ws {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Saturated = status.TotalWorkers > 0 &&
		status.BusyWorkers == status.TotalWorkers &&
		status.QueuedJobs == status.QueueCapacity
	status.Healthy = h.pool.IsRunning() && status.TotalWorkers > 0 && status.StoppedWorkers == 0

	return status
}

// IsHealthy reports whether the pool can take jobs
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
