package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 2
)

// Migration represents one step of the key schema
type Migration struct {
	Version int
	Up      func(ctx context.Context, client redis.Cmdable) error
}

// Migrate runs all pending migrations
func Migrate(ctx context.Context, client redis.Cmdable, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client redis.Cmdable) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client redis.Cmdable, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// 1: configs were stored as bare ConfigResponse JSON without a
			// fetch time. Wrap them so Load can tell how old a cache entry is.
			Version: 1,
			Up: func(ctx context.Context, client redis.Cmdable) error {
				robots, err := client.SMembers(ctx, configIndexKey).Result()
				if err != nil {
					return err
				}
				for _, id := range robots {
					raw, err := client.Get(ctx, configKey(id)).Bytes()
					if err == redis.Nil {
						client.SRem(ctx, configIndexKey, id)
						continue
					}
					if err != nil {
						return err
					}
					wrapped, err := wrapLegacyConfig(raw)
					if err != nil {
						return fmt.Errorf("config %s: %w", id, err)
					}
					if wrapped == nil {
						continue
					}
					if err := client.Set(ctx, configKey(id), wrapped, 0).Err(); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// 2: drop index members whose config key is gone.
			Version: 2,
			Up: func(ctx context.Context, client redis.Cmdable) error {
				robots, err := client.SMembers(ctx, configIndexKey).Result()
				if err != nil {
					return err
				}
				for _, id := range robots {
					n, err := client.Exists(ctx, configKey(id)).Result()
					if err != nil {
						return err
					}
					if n == 0 {
						if err := client.SRem(ctx, configIndexKey, id).Err(); err != nil {
							return err
						}
					}
				}
				return nil
			},
		},
	}
}
