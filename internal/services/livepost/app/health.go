package server

import (
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// PushHealthService is the gRPC health service name that tracks the push
// connection. The overall ("") service reports the process itself.
const PushHealthService = "livepost.push"

func pushServingStatus(state ConnState) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if state == StateConnected {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

func newHealthServer(transport *Transport) *health.Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	if transport != nil {
		transport.OnStateChange(func(state ConnState) {
			healthServer.SetServingStatus(PushHealthService, pushServingStatus(state))
		})
	}
	return healthServer
}
