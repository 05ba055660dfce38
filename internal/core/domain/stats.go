package domain

import "time"

type ConnectionKind string

const (
	ConnectionHTTP2  ConnectionKind = "http2"
	ConnectionWebRTC ConnectionKind = "webrtc"
)

// ServerStats is a point-in-time view of the orchestrator for health checks.
type ServerStats struct {
	HasCloudClient  bool
	ActiveSession   bool
	SessionID       string
	Priority        *Priority
	Iterations      uint64
	HTTP2Served     uint64
	WebRTCSessions  uint64
	Preemptions     uint64
	CloudReconnects uint64
	CloudBreaker    string
	CloudFailures   int
	LastError       string
	StartedAt       time.Time
}
