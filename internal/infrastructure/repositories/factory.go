package repositories

import (
	"context"

	"botlink/internal/core/ports"
	"botlink/internal/infrastructure/repositories/memory"
	redisrepo "botlink/internal/infrastructure/repositories/redis"
	"botlink/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled and falls back to
// memory repositories when it cannot.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis config cache")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory config cache")
	}

	return factory, nil
}

// CreateConfigRepository creates the robot config cache (Redis or memory with fallback)
func (f *RepositoryFactory) CreateConfigRepository() ports.ConfigRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisConfigRepository(f.redisClient, 0)
	}
	return memory.NewMemoryConfigRepository()
}

// RedisClient returns the live client, or nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
