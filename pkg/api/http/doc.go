// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Quiz submission (POST /quiz)
//   - Job status, attempts, reports and cancellation under /api/v1
//   - Health checks
//   - Prometheus metrics
//
// The /api/v1 group requires the service secret as a bearer token.
package http
