package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// QuizSubmitResponse is returned when a quiz job is accepted
type QuizSubmitResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Processing bool   `json:"processing"`
	JobID      string `json:"job_id"`
}

// JobStatusResponse summarizes a job
type JobStatusResponse struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	CurrentURL  string           `json:"current_url"`
	Attempts    int              `json:"attempts"`
	Correct     int              `json:"correct"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Deadline    time.Time        `json:"deadline"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleIndex describes the service
func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "OK",
		"usage":  "POST to /quiz with {email, secret, url}",
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
		return
	}

	status := s.health.GetStatus()
	code, text := http.StatusOK, "healthy"
	if !status.Healthy {
		code, text = http.StatusServiceUnavailable, "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    text,
		"timestamp": status.Timestamp,
		"checks": gin.H{
			"workers": status,
		},
	})
}

// handleSubmitQuiz accepts a quiz URL and starts solving in the background
func (s *Server) handleSubmitQuiz(c *gin.Context) {
	var req domain.QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}

	jobID, err := s.jobs.SubmitQuiz(c.Request.Context(), &req)
	if err != nil {
		var verr *orchestrator.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", verr.Error(), gin.H{"field": verr.Field})
		case errors.Is(err, orchestrator.ErrInvalidSecret):
			respondError(c, http.StatusForbidden, "INVALID_SECRET", "Invalid secret", nil)
		case errors.Is(err, orchestrator.ErrEmailNotAllowed):
			respondError(c, http.StatusForbidden, "EMAIL_NOT_ALLOWED", "Email is not allowed", nil)
		default:
			s.logger.Error("failed to submit quiz", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "SUBMISSION_FAILED", "Failed to start quiz processing", nil)
		}
		return
	}

	c.JSON(http.StatusOK, QuizSubmitResponse{
		Status:     "success",
		Message:    "Started quiz processing",
		Processing: true,
		JobID:      jobID,
	})
}

// handleListJobs lists jobs newest first
func (s *Server) handleListJobs(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
		return
	}
	limit = min(limit, maxListLimit)

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "offset must be a non-negative integer", nil)
		return
	}

	jobs, err := s.jobs.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list jobs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list jobs", nil)
		return
	}

	public := make([]*domain.Job, len(jobs))
	for i, j := range jobs {
		public[i] = j.Public()
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   public,
		"count":  len(public),
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// loadJob fetches the job named in the path, writing the error response on failure
func (s *Server) loadJob(c *gin.Context) (*domain.Job, bool) {
	jobID := c.Param("id")

	job, err := s.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		} else {
			s.logger.Error("failed to get job", zap.String("job_id", jobID), zap.Error(err))
			respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to get job", nil)
		}
		return nil, false
	}
	return job, true
}

// handleGetJob returns the full job without its secret
func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.Public())
}

// handleGetStatus returns a job summary
func (s *Server) handleGetStatus(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		CurrentURL:  job.CurrentURL,
		Attempts:    len(job.Attempts),
		Correct:     job.CorrectCount(),
		Error:       job.Error,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Deadline:    job.Deadline,
	})
}

// handleGetAttempts returns the submissions made for a job
func (s *Server) handleGetAttempts(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}

	attempts := job.Attempts
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.ID,
		"attempts": attempts,
	})
}

// handleGetReport renders the job as a PDF document
func (s *Server) handleGetReport(c *gin.Context) {
	if s.reports == nil {
		respondError(c, http.StatusServiceUnavailable, "REPORTS_NOT_AVAILABLE", "Report generation is not configured", nil)
		return
	}

	job, ok := s.loadJob(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.reports.Generate(c.Request.Context(), job.Public(), &buf); err != nil {
		s.logger.Error("failed to generate report", zap.String("job_id", job.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "REPORT_FAILED", "Failed to generate report", nil)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="quiz-job-%s.pdf"`, job.ID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// handleCancelJob handles job cancellation
func (s *Server) handleCancelJob(c *gin.Context) {
	jobID := c.Param("id")

	if err := s.jobs.CancelJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, ports.ErrJobNotFound):
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		case errors.Is(err, orchestrator.ErrJobTerminal), errors.Is(err, orchestrator.ErrJobNotRunnable):
			respondError(c, http.StatusConflict, "CANCELLATION_FAILED", err.Error(), nil)
		default:
			s.logger.Error("failed to cancel job", zap.String("job_id", jobID), zap.Error(err))
			respondError(c, http.StatusInternalServerError, "CANCELLATION_FAILED", "Failed to cancel job", nil)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       jobID,
		"message":      "Cancellation requested",
		"requested_at": time.Now(),
	})
}
