package ports

import (
	"context"

	"botlink/internal/core/domain"
)

type Robot interface {
	ResourceNames() []domain.ResourceName
	Status(ctx context.Context, names []domain.ResourceName) ([]domain.ResourceStatus, error)
	DoCommand(ctx context.Context, name string, cmd map[string]interface{}) (map[string]interface{}, error)
}
