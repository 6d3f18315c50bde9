package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	jobsSubmitted  *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	attempts       *prometheus.CounterVec
	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	llmCalls       *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	activeJobs     prometheus.Gauge

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		jobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_jobs_submitted_total",
				Help: "Total number of quiz jobs submitted",
			},
			[]string{"status"},
		),
		jobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_jobs_finished_total",
				Help: "Total number of quiz jobs finished by final status",
			},
			[]string{"status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsolver_job_duration_seconds",
				Help:    "Quiz job duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"status"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_attempts_total",
				Help: "Total number of answer submissions",
			},
			[]string{"correct"},
		),
		renders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_page_renders_total",
				Help: "Total number of quiz page renders",
			},
			[]string{"mode", "status"},
		),
		renderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsolver_page_render_duration_seconds",
				Help:    "Quiz page render duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_llm_calls_total",
				Help: "Total number of LLM API calls",
			},
			[]string{"model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsolver_llm_latency_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"model"},
		),
		activeJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quizsolver_active_jobs",
				Help: "Number of jobs currently tracked as submitted or running",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quizsolver_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quizsolver_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quizsolver_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordJobSubmitted records a job submission
func (c *Collector) RecordJobSubmitted(status string) {
	c.jobsSubmitted.WithLabelValues(status).Inc()
}

// RecordJobFinished records a job reaching a terminal status
func (c *Collector) RecordJobFinished(status string, duration time.Duration) {
	c.jobsFinished.WithLabelValues(status).Inc()
	c.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAttempt records an answer submission
func (c *Collector) RecordAttempt(correct bool) {
	c.attempts.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

// RecordRender records a page render
func (c *Collector) RecordRender(mode string, duration time.Duration, err error) {
	c.renders.WithLabelValues(mode, statusLabel(err)).Inc()
	c.renderDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordLLMCall records an LLM API call with its token usage
func (c *Collector) RecordLLMCall(model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	c.llmCalls.WithLabelValues(model, statusLabel(err)).Inc()
	c.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
	if inputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetActiveJobs sets the number of active jobs
func (c *Collector) SetActiveJobs(count int) {
	c.activeJobs.Set(float64(count))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
