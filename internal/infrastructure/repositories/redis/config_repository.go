package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const configIndexKey = keyPrefix + "config:robots"

func configKey(robotID string) string {
	return keyPrefix + "config:" + robotID
}

// storedConfig is the value kept under configKey.
type storedConfig struct {
	Config     domain.ConfigResponse `json:"config"`
	ReceivedAt *time.Time            `json:"received_at,omitempty"`
	SavedAt    time.Time             `json:"saved_at"`
}

// wrapLegacyConfig converts a bare ConfigResponse into a storedConfig. It
// returns nil when raw is already wrapped.
func wrapLegacyConfig(raw []byte) ([]byte, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["config"]; ok {
		return nil, nil
	}
	var cfg domain.ConfigResponse
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return json.Marshal(storedConfig{Config: cfg})
}

type RedisConfigRepository struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisConfigRepository stores configs without expiry when ttl is zero.
func NewRedisConfigRepository(client redis.Cmdable, ttl time.Duration) ports.ConfigRepository {
	return &RedisConfigRepository{client: client, ttl: ttl}
}

func (r *RedisConfigRepository) Save(ctx context.Context, robotID string, cfg *domain.ConfigResponse) error {
	if cfg == nil {
		return domain.ErrConfigNotFound
	}

	data, err := json.Marshal(storedConfig{
		Config:     *cfg,
		ReceivedAt: cfg.ReceivedAt,
		SavedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, configKey(robotID), data, r.ttl)
	pipe.SAdd(ctx, configIndexKey, robotID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (r *RedisConfigRepository) Load(ctx context.Context, robotID string) (*domain.ConfigResponse, error) {
	data, err := r.client.Get(ctx, configKey(robotID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var stored storedConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := stored.Config
	cfg.ReceivedAt = stored.ReceivedAt
	return &cfg, nil
}
