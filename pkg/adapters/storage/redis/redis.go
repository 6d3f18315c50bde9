package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	jobKeyPrefix = "quizsolver:job:"
	jobIndexKey  = "quizsolver:jobs"
)

// JobStorage implements ports.JobStorage using Redis
type JobStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewJobStorage creates a new Redis job storage
func NewJobStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *JobStorage {
	return &JobStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveJob saves job state to Redis and indexes it by submission time
func (s *JobStorage) SaveJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("invalid job")
	}

	// Serialize job
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, getJobKey(job.ID), data, s.ttl)
	pipe.ZAdd(ctx, jobIndexKey, redis.Z{
		Score:  float64(job.SubmittedAt.UnixNano()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Debug("job saved",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)))

	return nil
}

// GetJob retrieves job state from Redis
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	data, err := s.client.Get(ctx, getJobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// ListJobs lists jobs newest first. Index entries whose job expired are pruned.
func (s *JobStorage) ListJobs(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, jobIndexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrJobNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, jobIndexKey, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune job index", zap.Error(err))
		}
	}

	return jobs, nil
}

// DeleteJob deletes job state from Redis
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, getJobKey(jobID))
	pipe.ZRem(ctx, jobIndexKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	s.logger.Debug("job deleted",
		zap.String("job_id", jobID))

	return nil
}

// getJobKey returns the Redis key for a job
func getJobKey(jobID string) string {
	return jobKeyPrefix + jobID
}
