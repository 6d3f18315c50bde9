package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	"github.com/aescanero/quizsolver/internal/application/workers"
	eventsmemory "github.com/aescanero/quizsolver/pkg/adapters/events/memory"
	promcollector "github.com/aescanero/quizsolver/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/quizsolver/pkg/adapters/storage/memory"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "s3cret"

type staticHealth struct {
	healthy bool
}

func (h staticHealth) GetStatus() *workers.HealthStatus {
	return &workers.HealthStatus{TotalWorkers: 2, IdleWorkers: 2, Healthy: h.healthy, Timestamp: time.Now()}
}

type testServer struct {
	server  *Server
	manager *orchestrator.Manager
	storage *storagememory.InMemoryJobStorage
}

func newTestServer(t *testing.T, healthy bool) *testServer {
	return newTestServerForEmail(t, healthy, "")
}

func newTestServerForEmail(t *testing.T, healthy bool, email string) *testServer {
	storage := storagememory.NewInMemoryJobStorage()
	reg := prometheus.NewRegistry()
	manager := orchestrator.NewManager(eventsmemory.NewInMemoryEventBus(), storage,
		promcollector.NewCollector(reg), orchestrator.NewValidator(testSecret, email), zap.NewNop(), time.Minute)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	s := NewServer(&Config{
		Port:      0,
		SecretKey: testSecret,
		Jobs:      manager,
		Health:    staticHealth{healthy: healthy},
		Reports:   report.NewGenerator(report.DefaultConfig()),
		Gatherer:  reg,
		Logger:    zap.NewNop(),
	})
	return &testServer{server: s, manager: manager, storage: storage}
}

func (ts *testServer) do(method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func (ts *testServer) submit(t *testing.T) string {
	t.Helper()
	w := ts.do(http.MethodPost, "/quiz",
		`{"email":"student@example.com","secret":"s3cret","url":"https://quiz.example.com/q1"}`, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp QuizSubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(http.MethodGet, "/", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "POST to /quiz")
}

func TestSubmitQuiz(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(http.MethodPost, "/quiz",
		`{"email":"student@example.com","secret":"s3cret","url":"https://quiz.example.com/q1"}`, false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp QuizSubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.Processing)

	job, err := ts.storage.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "https://quiz.example.com/q1", job.StartURL)
}

func TestSubmitQuizErrors(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		body   string
		status int
		code   string
	}{
		{"malformed json", "", `{"email":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing url", "", `{"email":"student@example.com","secret":"s3cret"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad email", "", `{"email":"nope","secret":"s3cret","url":"https://quiz.example.com"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong secret", "", `{"email":"student@example.com","secret":"wrong","url":"https://quiz.example.com"}`, http.StatusForbidden, "INVALID_SECRET"},
		{"other email", "owner@example.com", `{"email":"student@example.com","secret":"s3cret","url":"https://quiz.example.com"}`, http.StatusForbidden, "EMAIL_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServerForEmail(t, true, tt.email)

			w := ts.do(http.MethodPost, "/quiz", tt.body, false)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestSubmitQuizBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, true)

	body := `{"email":"student@example.com","secret":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	w := ts.do(http.MethodPost, "/quiz", body, false)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Code)
}

func TestHealth(t *testing.T) {
	w := newTestServer(t, true).do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	w = newTestServer(t, false).do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"unhealthy"`)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, true)
	ts.submit(t)

	w := ts.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quizsolver_")
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(http.MethodGet, "/api/v1/jobs", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)

	w = ts.do(http.MethodGet, "/api/v1/jobs?token="+testSecret, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t, true)
	jobID := ts.submit(t)

	w := ts.do(http.MethodGet, "/api/v1/jobs/"+jobID, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), testSecret)

	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, domain.JobStatusSubmitted, job.Status)

	w = ts.do(http.MethodGet, "/api/v1/jobs/missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code)
}

func TestGetStatusAndAttempts(t *testing.T) {
	ts := newTestServer(t, true)
	jobID := ts.submit(t)

	job, err := ts.storage.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	job.Attempts = []domain.Attempt{
		{QuizURL: "https://quiz.example.com/q1", Answer: 42, Correct: true, Try: 1},
		{QuizURL: "https://quiz.example.com/q2", Answer: "x", Reason: "wrong", Try: 1},
	}
	require.NoError(t, ts.storage.SaveJob(context.Background(), job))

	w := ts.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/status", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var status JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 2, status.Attempts)
	assert.Equal(t, 1, status.Correct)

	w = ts.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/attempts", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var attempts struct {
		Attempts []domain.Attempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &attempts))
	require.Len(t, attempts.Attempts, 2)
	assert.Equal(t, "wrong", attempts.Attempts[1].Reason)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t, true)
	ts.submit(t)
	ts.submit(t)

	w := ts.do(http.MethodGet, "/api/v1/jobs?limit=1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs  []domain.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Empty(t, resp.Jobs[0].Secret)

	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		w = ts.do(http.MethodGet, "/api/v1/jobs?"+q, "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestCancelJob(t *testing.T) {
	ts := newTestServer(t, true)
	jobID := ts.submit(t)

	w := ts.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	job, err := ts.storage.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)

	w = ts.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", "", true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CANCELLATION_FAILED", decodeError(t, w).Code)

	w = ts.do(http.MethodPost, "/api/v1/jobs/missing/cancel", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReport(t *testing.T) {
	ts := newTestServer(t, true)
	jobID := ts.submit(t)

	w := ts.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/report", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), jobID)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestSubmitQuizBoundEmail(t *testing.T) {
	ts := newTestServerForEmail(t, true, "Student@Example.com")

	w := ts.do(http.MethodPost, "/quiz",
		`{"email":"student@example.com","secret":"s3cret","url":"https://quiz.example.com/q1"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
}
