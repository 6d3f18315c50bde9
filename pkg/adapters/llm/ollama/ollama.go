// Package ollama implements ports.LLMClient on a self-hosted Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const (
	// DefaultURL is the local Ollama endpoint
	DefaultURL = "http://localhost:11434"
	// DefaultModel is used when no model is configured
	DefaultModel = "llama3.1"
)

// Config holds Ollama client settings
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the Ollama chat endpoint without streaming
type Client struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a new Ollama client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// GenerateCompletion runs a chat request and accumulates the reply
func (c *Client) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var (
		content strings.Builder
		usage   domain.Usage
		replied string
	)
	err := c.client.Chat(ctx, chatReq, func(cr api.ChatResponse) error {
		content.WriteString(cr.Message.Content)
		if cr.Done {
			usage.InputTokens = cr.PromptEvalCount
			usage.OutputTokens = cr.EvalCount
			replied = cr.Model
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	if replied == "" {
		replied = model
	}

	c.logger.Debug("ollama completion",
		zap.String("model", replied),
		zap.Int("eval_count", usage.OutputTokens))

	return &domain.LLMResponse{
		Content: content.String(),
		Model:   replied,
		Usage:   usage,
	}, nil
}
