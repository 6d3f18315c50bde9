package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventTypeSnapshot is the first message of every stream
const EventTypeSnapshot domain.EventType = "job.snapshot"

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// JobLookup loads jobs for the stream snapshot
type JobLookup interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	jobs     JobLookup
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, jobs JobLookup, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		jobs:     jobs,
		logger:   logger,
	}
}

// HandleJobStream streams the events of one job
func (h *Handler) HandleJobStream(c *gin.Context) {
	jobID := c.Param("id")

	if _, err := h.jobs.GetJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Job not found"}})
			return
		}
		h.logger.Error("failed to get job", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "Failed to get job"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("job_id", jobID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before the snapshot so no event falls between the two
	eventChan := make(chan domain.Event, 32)
	group := "ws-" + uuid.New().String()
	err = h.eventBus.Subscribe(ctx, orchestrator.TopicEvents, group, func(ctx context.Context, event domain.Event) error {
		if event.JobID != jobID {
			return nil
		}
		select {
		case eventChan <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("job_id", jobID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe to job events", zap.String("job_id", jobID), zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer func() {
		unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unsubCancel()
		if err := h.eventBus.Unsubscribe(unsubCtx, orchestrator.TopicEvents, group); err != nil {
			h.logger.Warn("failed to unsubscribe", zap.String("group", group), zap.Error(err))
		}
	}()

	go h.readPump(conn, cancel)

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "failed to load job")
		return
	}
	snapshot := domain.Event{
		ID:        uuid.New().String(),
		Type:      EventTypeSnapshot,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"job": job.Public()},
	}
	if err := h.write(conn, snapshot); err != nil {
		return
	}
	if job.Status.IsTerminal() {
		h.closeWith(conn, websocket.CloseNormalClosure, string(job.Status))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if err := h.write(conn, event); err != nil {
				return
			}
			if isTerminal(event.Type) {
				h.closeWith(conn, websocket.CloseNormalClosure, string(event.Type))
				return
			}
		}
	}
}

// readPump discards client messages and cancels the stream once the client goes away
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, event domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Debug("failed to write message",
			zap.String("job_id", event.JobID),
			zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func isTerminal(t domain.EventType) bool {
	switch t {
	case domain.EventTypeJobCompleted, domain.EventTypeJobFailed,
		domain.EventTypeJobCancelled, domain.EventTypeJobTimedOut:
		return true
	}
	return false
}
