package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJobSubmitted("submitted")
	c.RecordJobFinished("completed", 3*time.Second)
	c.RecordAttempt(true)
	c.RecordAttempt(false)
	c.RecordAttempt(true)
	c.RecordLLMCall("gpt-5-nano", time.Second, 100, 5, nil)
	c.RecordLLMCall("gpt-5-nano", time.Second, 0, 0, errors.New("boom"))
	c.RecordRender("http", time.Millisecond, nil)
	c.RecordWorkerPoolStatus(2, 1, 0)
	c.SetActiveJobs(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.attempts.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("gpt-5-nano", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("gpt-5-nano", "input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.renders.WithLabelValues("http", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.workerPoolIdle))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeJobs))
}

func TestCollectorsOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
