// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between boundaries and makes the
// durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// PostFetch caps a single initial post fetch against the posts API.
const PostFetch = 5 * time.Second

// PushDial caps one websocket dial attempt against the push server.
const PushDial = 5 * time.Second

// PushWrite caps a single outbound frame write on the push connection.
const PushWrite = 5 * time.Second

// PushReconnectInitial is the first delay before redialing the push server.
const PushReconnectInitial = 500 * time.Millisecond

// PushReconnectMax bounds the delay between push reconnect attempts.
const PushReconnectMax = 30 * time.Second

// ConsumerWrite caps a single frame write to a consumer websocket.
const ConsumerWrite = 5 * time.Second

// HealthCheckWait caps a readiness check waiting for the push health service.
const HealthCheckWait = 10 * time.Second
