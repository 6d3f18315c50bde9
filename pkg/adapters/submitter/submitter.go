// Package submitter posts answers to quiz submit endpoints.
package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// MaxPayloadBytes is the largest submission body accepted by quiz servers
const MaxPayloadBytes = 1 << 20

// ErrPayloadTooLarge is returned when the encoded submission exceeds MaxPayloadBytes
var ErrPayloadTooLarge = errors.New("submission payload exceeds 1MB")

// errRetryable marks failures worth another attempt
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// Submitter posts JSON submissions and decodes the verdict
type Submitter struct {
	client     *http.Client
	maxRetries int
	minDelay   time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

// New creates a Submitter that retries network and 5xx failures up to maxRetries times
func New(client *http.Client, maxRetries int, logger *zap.Logger) *Submitter {
	return &Submitter{
		client:     client,
		maxRetries: maxRetries,
		minDelay:   200 * time.Millisecond,
		maxDelay:   3 * time.Second,
		logger:     logger,
	}
}

// Submit posts payload to submitURL. Quiz servers answer wrong submissions
// with 4xx and a JSON verdict, so those are decoded rather than treated as errors.
func (s *Submitter) Submit(ctx context.Context, submitURL string, payload *domain.Submission) (*domain.SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}
	if len(body) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}

	b := &backoff.Backoff{
		Min:    s.minDelay,
		Max:    s.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		result, err := s.post(ctx, submitURL, body)
		if err == nil {
			return result, nil
		}

		var retryable errRetryable
		if !errors.As(err, &retryable) || int(b.Attempt()) >= s.maxRetries {
			return nil, err
		}

		delay := b.Duration()
		s.logger.Warn("submission failed, retrying",
			zap.String("submit_url", submitURL),
			zap.Float64("attempt", b.Attempt()),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("submission aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Submitter) post(ctx context.Context, submitURL string, body []byte) (*domain.SubmitResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("submission aborted: %w", ctx.Err())
		}
		return nil, errRetryable{fmt.Errorf("failed to post submission: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPayloadBytes))
	if err != nil {
		return nil, errRetryable{fmt.Errorf("failed to read submission response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, errRetryable{fmt.Errorf("submit endpoint returned %d", resp.StatusCode)}
	}

	var result domain.SubmitResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("submit endpoint returned %d with non-JSON body: %w", resp.StatusCode, err)
	}

	return &result, nil
}
