// Package static renders pages with a plain HTTP GET.
package static

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aescanero/quizsolver/pkg/ports"
	"go.uber.org/zap"
)

// DefaultMaxPageBytes bounds a fetched page when no limit is configured
const DefaultMaxPageBytes = 5 << 20

// Renderer returns the HTML served at a URL without running scripts
type Renderer struct {
	downloader ports.Downloader
	limit      int64
	logger     *zap.Logger
}

// New creates a static renderer
func New(downloader ports.Downloader, limit int64, logger *zap.Logger) *Renderer {
	if limit <= 0 {
		limit = DefaultMaxPageBytes
	}
	return &Renderer{downloader: downloader, limit: limit, logger: logger}
}

// Render fetches url and returns the body as HTML
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	data, err := r.downloader.Download(ctx, url, r.limit)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("page %s is not valid UTF-8", url)
	}
	return string(data), nil
}

// Close is a no-op
func (r *Renderer) Close() error {
	return nil
}
