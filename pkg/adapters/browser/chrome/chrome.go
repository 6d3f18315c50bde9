// Package chrome renders pages in headless Chrome.
package chrome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config holds browser settings
type Config struct {
	// ExecPath is the Chrome binary; empty lets chromedp search the usual locations
	ExecPath string
	// Wait is the settle time after the body is ready, for late scripts
	Wait    time.Duration
	Timeout time.Duration
}

// Renderer drives one shared browser process and opens a tab per render
type Renderer struct {
	cfg    Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
	closed        bool
}

// New creates a renderer. The browser is launched on first use.
func New(cfg Config, logger *zap.Logger) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("renderer is closed")
	}
	if r.started {
		return r.browserCtx, nil
	}

	ctx, cancel := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(r.logger.Sugar().Debugf),
		chromedp.WithErrorf(r.logger.Sugar().Debugf))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	r.browserCtx, r.browserCancel, r.started = ctx, cancel, true
	r.logger.Info("headless browser started")
	return ctx, nil
}

// Render navigates to url, waits for the page to settle and returns the outer HTML
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancelTimeout()

	// Closing the tab is the only way to interrupt chromedp from the caller's context
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}

	r.logger.Debug("page rendered",
		zap.String("url", url),
		zap.Int("bytes", len(html)))

	return html, nil
}

// Close shuts down the browser process
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.browserCancel != nil {
		r.browserCancel()
	}
	r.allocCancel()
	return nil
}
