package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/page"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/aescanero/quizsolver/pkg/processors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// emptyReplyRetries is how many times a reply without an answer is asked again
const emptyReplyRetries = 1

// Config holds solving limits and LLM request settings
type Config struct {
	TimeBudget         time.Duration
	MaxAnswerTries     int
	MaxAttachments     int
	MaxAttachmentBytes int64
	PromptContextChars int

	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the limits used for fields left zero
func DefaultConfig() Config {
	return Config{
		TimeBudget:         180 * time.Second,
		MaxAnswerTries:     2,
		MaxAttachments:     3,
		MaxAttachmentBytes: 10 << 20,
		PromptContextChars: 8000,
		Temperature:        0.1,
		MaxTokens:          500,
	}
}

// Processor turns a downloaded attachment into prompt text
type Processor interface {
	Process(ctx context.Context, att domain.Attachment, data []byte) (string, error)
}

// Dependencies are the adapters a Solver drives
type Dependencies struct {
	Renderer   ports.Renderer
	Downloader ports.Downloader
	Processor  Processor
	LLM        ports.LLMClient
	Submitter  ports.Submitter
	Metrics    ports.MetricsCollector
}

// ProgressFunc receives every submitted attempt together with the URL the
// chain continues at ("" when it ends)
type ProgressFunc func(attempt domain.Attempt, nextURL string)

// Solver answers quiz chains
type Solver struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
}

// New creates a new Solver
func New(cfg Config, deps Dependencies, logger *zap.Logger) *Solver {
	def := DefaultConfig()
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = def.TimeBudget
	}
	if cfg.MaxAnswerTries <= 0 {
		cfg.MaxAnswerTries = def.MaxAnswerTries
	}
	if cfg.MaxAttachments < 0 {
		cfg.MaxAttachments = 0
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = def.MaxAttachmentBytes
	}
	if cfg.PromptContextChars <= 0 {
		cfg.PromptContextChars = def.PromptContextChars
	}
	if deps.Processor == nil {
		deps.Processor = processors.NewRegistry()
	}

	return &Solver{cfg: cfg, deps: deps, logger: logger}
}

// Solve runs the chain for job starting at its current URL (or start URL)
// until the chain ends, the time budget passes or ctx is done. Context
// errors are returned unwrapped so callers can tell a timeout from a
// cancellation.
func (s *Solver) Solve(ctx context.Context, job *domain.Job, progress ProgressFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TimeBudget)
	defer cancel()

	current := job.CurrentURL
	if current == "" {
		current = job.StartURL
	}

	var (
		quiz     *loadedQuiz
		rejected []domain.Attempt
	)

	for current != "" {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger := s.logger.With(zap.String("job_id", job.ID), zap.String("quiz_url", current))

		if quiz == nil || quiz.page.URL != current {
			var err error
			quiz, err = s.load(ctx, current)
			if err != nil {
				return s.fail(ctx, err)
			}
			rejected = nil
		}

		started := time.Now()
		answer, err := s.ask(ctx, quiz, rejected)
		if err != nil {
			return s.fail(ctx, err)
		}

		submitURL := quiz.page.SubmitURL
		if submitURL == "" {
			submitURL = current
		}

		result, err := s.deps.Submitter.Submit(ctx, submitURL, &domain.Submission{
			Email:  job.Email,
			Secret: job.Secret,
			URL:    current,
			Answer: answer,
		})
		if err != nil {
			return s.fail(ctx, fmt.Errorf("failed to submit answer for %s: %w", current, err))
		}

		attempt := domain.Attempt{
			QuizURL:   current,
			SubmitURL: submitURL,
			Answer:    answer,
			Correct:   result.Correct,
			Reason:    result.Reason,
			NextURL:   result.URL,
			Try:       len(rejected) + 1,
			StartedAt: started,
			Duration:  time.Since(started),
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordAttempt(result.Correct)
		}

		next := s.next(current, attempt)
		switch {
		case result.Correct:
			rejected = nil
		case next == current:
			rejected = append(rejected, attempt)
		}

		logger.Info("answer submitted",
			zap.Bool("correct", result.Correct),
			zap.Int("try", attempt.Try),
			zap.String("reason", result.Reason),
			zap.String("next_url", next))

		if progress != nil {
			progress(attempt, next)
		}
		current = next
	}

	return nil
}

// next decides where the chain continues after an attempt
func (s *Solver) next(current string, a domain.Attempt) string {
	if a.Correct {
		return a.NextURL
	}
	if a.Try < s.cfg.MaxAnswerTries {
		return current
	}
	if a.NextURL == current {
		return ""
	}
	return a.NextURL
}

// fail prefers the context error so a timeout is not reported as a failure
func (s *Solver) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

type loadedQuiz struct {
	page        *domain.QuizPage
	attachments []attachmentContext
}

func (s *Solver) load(ctx context.Context, quizURL string) (*loadedQuiz, error) {
	html, err := s.deps.Renderer.Render(ctx, quizURL)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", quizURL, err)
	}

	p, err := page.Parse(quizURL, html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", quizURL, err)
	}

	attachments, err := s.gather(ctx, p.Attachments)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("quiz page loaded",
		zap.String("quiz_url", quizURL),
		zap.String("submit_url", p.SubmitURL),
		zap.Int("attachments", len(attachments)))

	return &loadedQuiz{page: p, attachments: attachments}, nil
}

// gather downloads and processes attachments in parallel. A failing
// attachment is recorded in its context entry instead of failing the quiz.
func (s *Solver) gather(ctx context.Context, atts []domain.Attachment) ([]attachmentContext, error) {
	if len(atts) > s.cfg.MaxAttachments {
		atts = atts[:s.cfg.MaxAttachments]
	}
	out := make([]attachmentContext, len(atts))

	g, gctx := errgroup.WithContext(ctx)
	for i, att := range atts {
		out[i].Attachment = att
		g.Go(func() error {
			data, err := s.deps.Downloader.Download(gctx, att.URL, s.cfg.MaxAttachmentBytes)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				out[i].Err = err
				return nil
			}
			out[i].Text, out[i].Err = s.deps.Processor.Process(gctx, att, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, a := range out {
		if a.Err != nil {
			s.logger.Warn("attachment skipped",
				zap.String("url", a.Attachment.URL),
				zap.Error(a.Err))
		}
	}
	return out, nil
}

// ask queries the LLM and turns its reply into the value to submit. A
// reply without an answer is asked again once before the job fails, so an
// empty answer never spends a try.
func (s *Solver) ask(ctx context.Context, quiz *loadedQuiz, rejected []domain.Attempt) (interface{}, error) {
	req := &domain.LLMRequest{
		Model:  s.cfg.Model,
		System: systemPrompt,
		Messages: []domain.Message{
			{Role: "user", Content: buildPrompt(quiz.page, quiz.attachments, rejected, s.cfg.PromptContextChars)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	var (
		answer interface{}
		chart  *processors.ChartSpec
	)
	for call := 0; ; call++ {
		resp, err := s.deps.LLM.GenerateCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("LLM request failed: %w", err)
		}

		answer, chart, err = ParseReply(resp.Content)
		if err == nil {
			break
		}
		if call >= emptyReplyRetries {
			return nil, fmt.Errorf("LLM reply for %s: %w", quiz.page.URL, err)
		}
		s.logger.Warn("LLM reply held no answer, asking again",
			zap.String("quiz_url", quiz.page.URL),
			zap.Int("output_tokens", resp.Usage.OutputTokens))
	}

	if chart == nil {
		return answer, nil
	}

	uri, err := processors.ChartDataURI(*chart)
	if err != nil {
		s.logger.Warn("chart rendering failed, submitting plain answer", zap.Error(err))
		return answer, nil
	}
	return uri, nil
}

// IsTimeout reports whether err ended a chain because its deadline passed
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
