package ports

import (
	"context"
	"time"

	"botlink/internal/core/domain"
)

// CloudStream is a message-oriented connection to the cloud. *websocket.Conn
// satisfies it.
type CloudStream interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

type CloudConnector interface {
	Connect(ctx context.Context) (CloudStream, error)
}

type CloudClientBuilder interface {
	Build(ctx context.Context, stream CloudStream, cfg domain.AppClientConfig) (CloudClient, error)
}

type CloudClient interface {
	ConnectSignaling(ctx context.Context) (Signaling, error)
	GetConfig(ctx context.Context) (*domain.ConfigResponse, *time.Time, error)
	PushLogs(ctx context.Context, entries []domain.LogEntry) error
	Close() error
}
