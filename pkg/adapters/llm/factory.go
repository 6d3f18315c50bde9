package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/quizsolver/pkg/adapters/llm/anthropic"
	"github.com/aescanero/quizsolver/pkg/adapters/llm/ollama"
	"github.com/aescanero/quizsolver/pkg/adapters/llm/openai"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"go.uber.org/zap"
)

// Config holds LLM client configuration
type Config struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, Ollama host)
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Metrics    ports.MetricsCollector
	Logger     *zap.Logger
}

// NewClient creates a new LLM client based on provider
func NewClient(cfg *Config) (ports.LLMClient, error) {
	var (
		client ports.LLMClient
		err    error
	)

	switch cfg.Provider {
	case "", "openai":
		client, err = openai.NewClient(openai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
		}, cfg.Logger)
	case "anthropic":
		client, err = anthropic.NewClient(anthropic.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
		}, cfg.Logger)
	case "ollama":
		client, err = ollama.NewClient(ollama.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return &instrumented{
		next:    client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
	}, nil
}

// instrumented bounds each call by a timeout and records metrics
type instrumented struct {
	next    ports.LLMClient
	model   string
	timeout time.Duration
	metrics ports.MetricsCollector
}

func (c *instrumented) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.next.GenerateCompletion(ctx, req)
	latency := time.Since(start)

	if c.metrics != nil {
		model := c.model
		if req != nil && req.Model != "" {
			model = req.Model
		}
		var in, out int
		if resp != nil {
			in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		}
		c.metrics.RecordLLMCall(model, latency, in, out, err)
	}

	return resp, err
}
