package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/quizsolver/pkg/adapters/browser/chrome"
	"github.com/aescanero/quizsolver/pkg/adapters/browser/static"
	"github.com/aescanero/quizsolver/pkg/ports"
	"go.uber.org/zap"
)

// Renderer modes
const (
	ModeChrome = "chrome"
	ModeHTTP   = "http"
)

// Config holds renderer configuration
type Config struct {
	Mode       string
	ChromePath string
	Wait       time.Duration
	Timeout    time.Duration
	// MaxPageBytes bounds pages fetched in http mode
	MaxPageBytes int64
}

// NewRenderer creates a renderer for the configured mode
func NewRenderer(cfg Config, downloader ports.Downloader, metrics ports.MetricsCollector, logger *zap.Logger) (ports.Renderer, error) {
	var r ports.Renderer

	switch cfg.Mode {
	case "", ModeChrome:
		r = chrome.New(chrome.Config{
			ExecPath: cfg.ChromePath,
			Wait:     cfg.Wait,
			Timeout:  cfg.Timeout,
		}, logger)
		cfg.Mode = ModeChrome
	case ModeHTTP:
		if downloader == nil {
			return nil, fmt.Errorf("http renderer requires a downloader")
		}
		r = static.New(downloader, cfg.MaxPageBytes, logger)
	default:
		return nil, fmt.Errorf("unsupported browser mode: %s", cfg.Mode)
	}

	return &instrumented{next: r, mode: cfg.Mode, metrics: metrics}, nil
}

type instrumented struct {
	next    ports.Renderer
	mode    string
	metrics ports.MetricsCollector
}

func (r *instrumented) Render(ctx context.Context, url string) (string, error) {
	start := time.Now()
	html, err := r.next.Render(ctx, url)
	if r.metrics != nil {
		r.metrics.RecordRender(r.mode, time.Since(start), err)
	}
	return html, err
}

func (r *instrumented) Close() error {
	return r.next.Close()
}
