// Package httpclient provides the retrying HTTP client used to fetch quiz
// pages and attachments.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"go.uber.org/zap"
)

// ErrTooLarge is returned when a download exceeds its size limit
var ErrTooLarge = errors.New("response body exceeds size limit")

const userAgent = "quizsolver/1.0"

// Config holds retrying client configuration
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig returns the configuration used when fields are left zero
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// New returns an http.Client whose transport retries temporary network
// errors and 5xx responses with exponential jittered delay.
func New(cfg Config) *http.Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	retryFns := []rehttp.RetryFn{
		rehttp.RetryAny(
			rehttp.RetryTemporaryErr(),
			rehttp.RetryStatuses(
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
			),
		),
		rehttp.RetryHTTPMethods(http.MethodGet, http.MethodHead),
		rehttp.RetryMaxRetries(max(cfg.MaxRetries, 0)),
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: rehttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone(),
			rehttp.RetryAll(retryFns...),
			rehttp.ExpJitterDelay(cfg.BaseDelay, cfg.MaxDelay)),
	}
}

// Fetcher downloads resources through an http.Client
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(client *http.Client, logger *zap.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// Download GETs url and returns at most limit bytes of body. A body larger
// than limit yields ErrTooLarge; limit <= 0 disables the check.
func (f *Fetcher) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status fetching %s: %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		if resp.ContentLength > limit {
			return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, url, resp.ContentLength)
		}
		body = io.LimitReader(resp.Body, limit+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
	}

	f.logger.Debug("downloaded resource",
		zap.String("url", url),
		zap.Int("bytes", len(data)))

	return data, nil
}
