// Package workers implements the worker pool that solves quiz jobs.
//
// The worker pool manages a fixed number of goroutines that:
//   - Receive submitted job IDs from the event bus through a bounded queue
//   - Claim the job from the orchestrator and run the solver under its
//     deadline-bound execution context
//   - Persist every attempt and the final job status in job storage
//   - Publish progress and completion events
//
// The health monitor tracks worker status and logs metrics.
package workers
