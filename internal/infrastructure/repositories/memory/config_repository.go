package memory

import (
	"context"
	"sync"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
)

type MemoryConfigRepository struct {
	configs map[string]domain.ConfigResponse
	mu      sync.RWMutex
}

func NewMemoryConfigRepository() ports.ConfigRepository {
	return &MemoryConfigRepository{
		configs: make(map[string]domain.ConfigResponse),
	}
}

func (r *MemoryConfigRepository) Save(ctx context.Context, robotID string, cfg *domain.ConfigResponse) error {
	if cfg == nil {
		return domain.ErrConfigNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[robotID] = cloneConfig(*cfg)
	return nil
}

func (r *MemoryConfigRepository) Load(ctx context.Context, robotID string) (*domain.ConfigResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.configs[robotID]
	if !exists {
		return nil, domain.ErrConfigNotFound
	}

	out := cloneConfig(cfg)
	return &out, nil
}

// cloneConfig copies the component slice so callers cannot mutate the cache.
func cloneConfig(cfg domain.ConfigResponse) domain.ConfigResponse {
	if cfg.Components != nil {
		cfg.Components = append([]domain.ComponentConfig(nil), cfg.Components...)
	}
	if cfg.ReceivedAt != nil {
		ts := *cfg.ReceivedAt
		cfg.ReceivedAt = &ts
	}
	return cfg
}
