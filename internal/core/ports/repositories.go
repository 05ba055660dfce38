package ports

import (
	"context"

	"botlink/internal/core/domain"
)

// ConfigRepository caches the last config fetched for a robot.
type ConfigRepository interface {
	Save(ctx context.Context, robotID string, cfg *domain.ConfigResponse) error
	Load(ctx context.Context, robotID string) (*domain.ConfigResponse, error)
}
