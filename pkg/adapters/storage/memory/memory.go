package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/aescanero/quizsolver/pkg/ports"
)

// InMemoryJobStorage implements JobStorage using an in-memory map
type InMemoryJobStorage struct {
	jobs map[string]*domain.Job
	mu   sync.RWMutex
}

// NewInMemoryJobStorage creates a new in-memory job storage
func NewInMemoryJobStorage() *InMemoryJobStorage {
	return &InMemoryJobStorage{
		jobs: make(map[string]*domain.Job),
	}
}

// SaveJob stores a copy of the job
func (s *InMemoryJobStorage) SaveJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("invalid job")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutations
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns a copy of the stored job
func (s *InMemoryJobStorage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrJobNotFound, jobID)
	}

	return job.Clone(), nil
}

// ListJobs returns jobs ordered by submission time, newest first
func (s *InMemoryJobStorage) ListJobs(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	s.mu.RLock()
	all := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].SubmittedAt.After(all[j].SubmittedAt)
	})

	if offset >= len(all) {
		return []*domain.Job{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// DeleteJob removes a job
func (s *InMemoryJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
	return nil
}
