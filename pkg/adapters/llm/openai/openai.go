// Package openai implements ports.LLMClient on the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/aescanero/quizsolver/pkg/domain"
	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-5-nano"

// Config holds OpenAI client settings
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// Client calls the chat completions endpoint
type Client struct {
	client sdk.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a new OpenAI client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: sdk.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// GenerateCompletion sends the conversation and returns the first choice
func (c *Client) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, sdk.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, sdk.SystemMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	// Reasoning models only accept the default temperature
	if supportsTemperature(model) {
		params.Temperature = sdk.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("openai completion",
		zap.String("model", resp.Model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return &domain.LLMResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: domain.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func supportsTemperature(model string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return false
		}
	}
	return true
}
