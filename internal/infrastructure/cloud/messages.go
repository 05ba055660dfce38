package cloud

import (
	"encoding/json"
	"time"

	"botlink/internal/core/domain"
)

const (
	TypeGetConfig       = "get_config"
	TypePushLogs        = "push_logs"
	TypeListenSignaling = "listen_signaling"
	TypeOffer           = "offer"
	TypeAnswer          = "answer"
	TypeResponse        = "response"
)

// Message is the envelope for every frame on the cloud websocket. Requests
// carry an ID echoed by their response; offers carry the signaling stream
// they belong to.
type Message struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Stream  uint64          `json:"stream,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type GetConfigRequest struct {
	RobotID string `json:"robot_id"`
}

type GetConfigResponse struct {
	Config    domain.ConfigResponse `json:"config"`
	Timestamp *time.Time            `json:"timestamp,omitempty"`
}

type PushLogsRequest struct {
	RobotID string            `json:"robot_id"`
	Logs    []domain.LogEntry `json:"logs"`
}

type ListenSignalingRequest struct {
	Host string `json:"host"`
}

type AnswerRequest struct {
	Answer domain.Answer `json:"answer"`
}
