// Package grpc serves the standard gRPC health checking protocol
// (grpc.health.v1.Health) so orchestrators can check the solver.
package grpc
