// Package websocket streams job progress to clients.
//
// Clients connect to /api/v1/jobs/:id/ws and first receive a
// "job.snapshot" message holding the current job, then every event
// published for that job until it reaches a terminal state.
package websocket
