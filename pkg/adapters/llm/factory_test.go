package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	model   string
	in, out int
	err     error
}

type fakeMetrics struct {
	calls []recordedCall
}

func (m *fakeMetrics) RecordJobSubmitted(string)                 {}
func (m *fakeMetrics) RecordJobFinished(string, time.Duration)   {}
func (m *fakeMetrics) RecordAttempt(bool)                        {}
func (m *fakeMetrics) RecordRender(string, time.Duration, error) {}
func (m *fakeMetrics) RecordWorkerPoolStatus(int, int, int)      {}
func (m *fakeMetrics) SetActiveJobs(int)                         {}
func (m *fakeMetrics) RecordLLMCall(model string, _ time.Duration, in, out int, err error) {
	m.calls = append(m.calls, recordedCall{model, in, out, err})
}

type stubClient struct {
	resp *domain.LLMResponse
	err  error
	wait time.Duration
}

func (s *stubClient) GenerateCompletion(ctx context.Context, _ *domain.LLMRequest) (*domain.LLMResponse, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.resp, s.err
}

func TestNewClientProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai default", Config{APIKey: "k"}, false},
		{"openai", Config{Provider: "openai", APIKey: "k"}, false},
		{"openai missing key", Config{Provider: "openai"}, true},
		{"anthropic", Config{Provider: "anthropic", APIKey: "k"}, false},
		{"anthropic missing key", Config{Provider: "anthropic"}, true},
		{"ollama", Config{Provider: "ollama", BaseURL: "http://localhost:11434"}, false},
		{"unknown", Config{Provider: "gemini"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = zap.NewNop()
			c, err := NewClient(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestInstrumentedRecordsMetrics(t *testing.T) {
	m := &fakeMetrics{}
	c := &instrumented{
		next:    &stubClient{resp: &domain.LLMResponse{Content: "x", Usage: domain.Usage{InputTokens: 3, OutputTokens: 4}}},
		model:   "default-model",
		metrics: m,
	}

	_, err := c.GenerateCompletion(context.Background(), &domain.LLMRequest{})
	require.NoError(t, err)
	_, err = c.GenerateCompletion(context.Background(), &domain.LLMRequest{Model: "override"})
	require.NoError(t, err)

	c.next = &stubClient{err: errors.New("boom")}
	_, err = c.GenerateCompletion(context.Background(), &domain.LLMRequest{})
	require.Error(t, err)

	require.Len(t, m.calls, 3)
	assert.Equal(t, recordedCall{"default-model", 3, 4, nil}, m.calls[0])
	assert.Equal(t, "override", m.calls[1].model)
	assert.EqualError(t, m.calls[2].err, "boom")
	assert.Zero(t, m.calls[2].in)
}

func TestInstrumentedTimeout(t *testing.T) {
	c := &instrumented{
		next:    &stubClient{wait: time.Second},
		timeout: 10 * time.Millisecond,
	}

	_, err := c.GenerateCompletion(context.Background(), &domain.LLMRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
