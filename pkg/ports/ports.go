// Package ports defines the interfaces between the application layer and
// the adapters (event bus, storage, LLM, browser, metrics).
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
)

// ErrJobNotFound is returned by JobStorage when no job exists for an ID
var ErrJobNotFound = errors.New("job not found")

// EventHandler processes an event received from the bus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers job events.
//
// Subscribe delivers every event on topic to exactly one handler of each
// group, so a group with several handlers behaves like a work queue while
// distinct groups each see every event.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic, group string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic, group string) error
	Close() error
}

// JobStorage persists job state
type JobStorage interface {
	SaveJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// LLMClient generates completions
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}

// Renderer loads a quiz page and returns its final HTML
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// Downloader fetches attachments with a size limit
type Downloader interface {
	Download(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Submitter posts an answer to a quiz submit endpoint
type Submitter interface {
	Submit(ctx context.Context, submitURL string, payload *domain.Submission) (*domain.SubmitResult, error)
}

// MetricsCollector records service metrics
type MetricsCollector interface {
	RecordJobSubmitted(status string)
	RecordJobFinished(status string, duration time.Duration)
	RecordAttempt(correct bool)
	RecordRender(mode string, duration time.Duration, err error)
	RecordLLMCall(model string, latency time.Duration, inputTokens, outputTokens int, err error)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetActiveJobs(count int)
}
