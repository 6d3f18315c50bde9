// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with one consumer group per subscriber group
//   - memory: In-memory for tests and single-process deployments
package events
