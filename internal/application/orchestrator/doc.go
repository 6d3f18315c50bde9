// Package orchestrator implements the job lifecycle for quiz solving.
//
// The orchestrator manager coordinates jobs by:
//   - Validating and authorizing quiz requests
//   - Managing job lifecycle (submit, begin, finish, cancel)
//   - Enforcing the time budget of jobs no worker picked up
//   - Publishing events to the event bus
//   - Tracking job state via job storage
//
// Workers call Begin to claim a job and receive its execution context, which
// is bound to the job deadline and cancelled by CancelJob or Shutdown.
package orchestrator
