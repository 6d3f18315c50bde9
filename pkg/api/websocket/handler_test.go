package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	eventsmemory "github.com/aescanero/quizsolver/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/quizsolver/pkg/adapters/storage/memory"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type streamFixture struct {
	bus     *eventsmemory.InMemoryEventBus
	storage *storagememory.InMemoryJobStorage
	server  *httptest.Server
}

func newStreamFixture(t *testing.T) *streamFixture {
	gin.SetMode(gin.TestMode)
	bus := eventsmemory.NewInMemoryEventBus()
	storage := storagememory.NewInMemoryJobStorage()

	router := gin.New()
	router.GET("/jobs/:id/ws", NewHandler(bus, storage, zap.NewNop()).HandleJobStream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &streamFixture{bus: bus, storage: storage, server: server}
}

func (f *streamFixture) saveJob(t *testing.T, id string, status domain.JobStatus) {
	require.NoError(t, f.storage.SaveJob(context.Background(), &domain.Job{
		ID:          id,
		Email:       "student@example.com",
		Secret:      "s3cret",
		StartURL:    "https://quiz.example.com/q1",
		Status:      status,
		SubmittedAt: time.Now(),
	}))
}

func (f *streamFixture) dial(t *testing.T, jobID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/jobs/" + jobID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func (f *streamFixture) publish(t *testing.T, eventType domain.EventType, jobID string) {
	require.NoError(t, f.bus.Publish(context.Background(), orchestrator.TopicEvents, domain.Event{
		ID:        string(eventType) + "-" + jobID,
		Type:      eventType,
		JobID:     jobID,
		Timestamp: time.Now(),
	}))
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	var event domain.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestStreamJobEvents(t *testing.T) {
	f := newStreamFixture(t)
	f.saveJob(t, "job-1", domain.JobStatusRunning)

	conn := f.dial(t, "job-1")

	snapshot := readEvent(t, conn)
	assert.Equal(t, EventTypeSnapshot, snapshot.Type)
	job, ok := snapshot.Data["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", job["status"])
	assert.NotContains(t, job, "secret")

	f.publish(t, domain.EventTypeAttemptSubmitted, "other-job")
	f.publish(t, domain.EventTypeAttemptSubmitted, "job-1")
	assert.Equal(t, domain.EventTypeAttemptSubmitted, readEvent(t, conn).Type)

	f.publish(t, domain.EventTypeJobCompleted, "job-1")
	event := readEvent(t, conn)
	assert.Equal(t, domain.EventTypeJobCompleted, event.Type)
	assert.Equal(t, "job-1", event.JobID)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamTerminalJobClosesAfterSnapshot(t *testing.T) {
	f := newStreamFixture(t)
	f.saveJob(t, "job-done", domain.JobStatusCompleted)

	conn := f.dial(t, "job-done")
	assert.Equal(t, EventTypeSnapshot, readEvent(t, conn).Type)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamUnknownJob(t *testing.T) {
	f := newStreamFixture(t)

	resp, err := http.Get(f.server.URL + "/jobs/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/jobs/missing/ws"
	_, wsResp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, wsResp.StatusCode)
}
