// Package storage provides job state storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization, TTL and a submission-time index
//   - memory: In-memory for tests and single-process deployments
package storage
