package solver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/pkg/adapters/browser/static"
	"github.com/aescanero/quizsolver/pkg/adapters/httpclient"
	"github.com/aescanero/quizsolver/pkg/adapters/submitter"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedLLM replies with canned answers in order and records prompts
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	err     error
	block   bool
}

func (l *scriptedLLM) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, req.Messages[0].Content)
	if l.block {
		l.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	if len(l.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := l.replies[0]
	l.replies = l.replies[1:]
	return &domain.LLMResponse{Content: reply}, nil
}

type quizServer struct {
	*httptest.Server
	mu          sync.Mutex
	submissions []domain.Submission
	q2Tries     int
}

func newQuizServer(t *testing.T) *quizServer {
	qs := &quizServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/q1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<h1>Quiz 1</h1>
			<p>Sum the value column of <a href="/files/data.csv">this file</a>.</p>
			<p>POST your answer to <a href="/submit">the submit endpoint</a>.</p>
			<script>var secret = "hidden";</script>
		</body></html>`))
	})
	mux.HandleFunc("/q2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>What is the answer to everything?</p>
			<form action="/submit" method="post"></form></body></html>`))
	})
	mux.HandleFunc("/q3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			qs.record(t, r)
			_ = json.NewEncoder(w).Encode(domain.SubmitResult{Correct: true})
			return
		}
		_, _ = w.Write([]byte(`<html><body><p>Draw a chart of the sales.</p></body></html>`))
	})
	mux.HandleFunc("/files/data.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("name,value\na,1\nb,2\nc,3\n"))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		sub := qs.record(t, r)
		var res domain.SubmitResult
		switch sub.URL {
		case qs.URL + "/q1":
			if sub.Answer == float64(6) {
				res = domain.SubmitResult{Correct: true, URL: qs.URL + "/q2"}
			} else {
				res = domain.SubmitResult{Correct: false, Reason: "wrong sum", URL: qs.URL + "/q2"}
			}
		case qs.URL + "/q2":
			qs.mu.Lock()
			qs.q2Tries++
			first := qs.q2Tries == 1
			qs.mu.Unlock()
			if first {
				w.WriteHeader(http.StatusBadRequest)
				res = domain.SubmitResult{Correct: false, Reason: "too low"}
			} else {
				res = domain.SubmitResult{Correct: sub.Answer == float64(42)}
			}
		}
		_ = json.NewEncoder(w).Encode(res)
	})

	qs.Server = httptest.NewServer(mux)
	return qs
}

func (qs *quizServer) record(t *testing.T, r *http.Request) domain.Submission {
	var sub domain.Submission
	require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
	qs.mu.Lock()
	qs.submissions = append(qs.submissions, sub)
	qs.mu.Unlock()
	return sub
}

type progressLog struct {
	attempts []domain.Attempt
	next     []string
}

func (p *progressLog) record(a domain.Attempt, next string) {
	p.attempts = append(p.attempts, a)
	p.next = append(p.next, next)
}

func newTestSolver(cfg Config, llm *scriptedLLM) *Solver {
	client := httpclient.New(httpclient.Config{MaxRetries: 0})
	fetcher := httpclient.NewFetcher(client, zap.NewNop())
	return New(cfg, Dependencies{
		Renderer:   static.New(fetcher, 0, zap.NewNop()),
		Downloader: fetcher,
		LLM:        llm,
		Submitter:  submitter.New(client, 0, zap.NewNop()),
	}, zap.NewNop())
}

func testJob(startURL string) *domain.Job {
	return &domain.Job{ID: "job-1", Email: "student@example.com", Secret: "s3cret", StartURL: startURL}
}

func TestSolveFollowsChainAndRetries(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{replies: []string{
		"```json\n{\"answer\": 6}\n```",
		"41",
		`{"answer": 42}`,
	}}
	progress := &progressLog{}

	err := newTestSolver(Config{}, llm).Solve(context.Background(), testJob(qs.URL+"/q1"), progress.record)
	require.NoError(t, err)

	require.Len(t, progress.attempts, 3)
	assert.Equal(t, []string{qs.URL + "/q2", qs.URL + "/q2", ""}, progress.next)

	first := progress.attempts[0]
	assert.True(t, first.Correct)
	assert.Equal(t, qs.URL+"/submit", first.SubmitURL)
	assert.Equal(t, int64(6), first.Answer)
	assert.Equal(t, 1, first.Try)

	assert.False(t, progress.attempts[1].Correct)
	assert.Equal(t, "too low", progress.attempts[1].Reason)
	assert.Equal(t, 2, progress.attempts[2].Try)
	assert.True(t, progress.attempts[2].Correct)

	require.Len(t, qs.submissions, 3)
	for _, sub := range qs.submissions {
		assert.Equal(t, "student@example.com", sub.Email)
		assert.Equal(t, "s3cret", sub.Secret)
	}
	assert.Equal(t, qs.URL+"/q1", qs.submissions[0].URL)

	require.Len(t, llm.prompts, 3)
	assert.Contains(t, llm.prompts[0], "Sum the value column")
	assert.Contains(t, llm.prompts[0], "sum=6")
	assert.NotContains(t, llm.prompts[0], "hidden")
	assert.NotContains(t, llm.prompts[1], "Previous answers")
	assert.Contains(t, llm.prompts[2], "Previous answers")
	assert.Contains(t, llm.prompts[2], "too low")
}

func TestSolveMovesOnAfterMaxTries(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{replies: []string{"5", "7", "40", "42"}}
	progress := &progressLog{}

	err := newTestSolver(Config{MaxAnswerTries: 2}, llm).Solve(context.Background(), testJob(qs.URL+"/q1"), progress.record)
	require.NoError(t, err)

	require.Len(t, progress.attempts, 4)
	assert.Equal(t, []string{qs.URL + "/q1", qs.URL + "/q2", qs.URL + "/q2", ""}, progress.next)
	assert.Equal(t, []int{1, 2, 1, 2}, []int{
		progress.attempts[0].Try, progress.attempts[1].Try,
		progress.attempts[2].Try, progress.attempts[3].Try,
	})
	assert.Contains(t, llm.prompts[1], "wrong sum")
	assert.NotContains(t, llm.prompts[2], "wrong sum")
}

func TestSolveResumesAtCurrentURL(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	job := testJob(qs.URL + "/q1")
	job.CurrentURL = qs.URL + "/q3"
	llm := &scriptedLLM{replies: []string{`"done"`}}

	require.NoError(t, newTestSolver(Config{}, llm).Solve(context.Background(), job, nil))
	require.Len(t, qs.submissions, 1)
	assert.Equal(t, qs.URL+"/q3", qs.submissions[0].URL)
	assert.Equal(t, "done", qs.submissions[0].Answer)
}

func TestSolveSubmitsChartAsDataURI(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{replies: []string{
		`{"answer": "see chart", "chart": {"type": "bar", "labels": ["a", "b"], "values": [3, 5]}}`,
	}}
	progress := &progressLog{}

	require.NoError(t, newTestSolver(Config{}, llm).Solve(context.Background(), testJob(qs.URL+"/q3"), progress.record))

	require.Len(t, progress.attempts, 1)
	assert.Equal(t, qs.URL+"/q3", progress.attempts[0].SubmitURL)
	answer, ok := progress.attempts[0].Answer.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(answer, "data:image/png;base64,"))
}

func TestSolveTimeBudget(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{block: true}
	err := newTestSolver(Config{TimeBudget: 50 * time.Millisecond}, llm).Solve(context.Background(), testJob(qs.URL+"/q2"), nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTimeout(err))
	assert.Empty(t, qs.submissions)
}

func TestSolveCancelled(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestSolver(Config{}, &scriptedLLM{}).Solve(ctx, testJob(qs.URL+"/q1"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}

func TestSolveLLMError(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	err := newTestSolver(Config{}, &scriptedLLM{err: errors.New("quota exceeded")}).
		Solve(context.Background(), testJob(qs.URL+"/q2"), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.False(t, IsTimeout(err))
}

func TestSolveRenderError(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	err := newTestSolver(Config{}, &scriptedLLM{}).Solve(context.Background(), testJob(qs.URL+"/missing"), nil)
	assert.ErrorContains(t, err, "failed to render")
}

func TestSolveAsksAgainAfterEmptyReply(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{replies: []string{"", `{"answer": "blue"}`}}
	progress := &progressLog{}

	require.NoError(t, newTestSolver(Config{}, llm).Solve(context.Background(), testJob(qs.URL+"/q3"), progress.record))

	require.Len(t, progress.attempts, 1)
	assert.Equal(t, "blue", progress.attempts[0].Answer)
	assert.Equal(t, 1, progress.attempts[0].Try)
	assert.Len(t, llm.prompts, 2)
}

func TestSolveFailsWhenReplyStaysEmpty(t *testing.T) {
	qs := newQuizServer(t)
	defer qs.Close()

	llm := &scriptedLLM{replies: []string{"", "null", "42"}}
	err := newTestSolver(Config{}, llm).Solve(context.Background(), testJob(qs.URL+"/q3"), nil)

	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Empty(t, qs.submissions)
	assert.Len(t, llm.prompts, 2)
}
