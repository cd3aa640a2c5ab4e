package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "roomrelay:"
	schemaVersionKey     = keyPrefix + "schema:version"
	statsKey             = keyPrefix + "stats"
	statsMetaKey         = keyPrefix + "stats:meta"
	currentSchemaVersion = 1
)

// Migration represents a schema migration
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
	Down    func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
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

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			// Counters live in one hash; the meta hash records when it was created.
			Up: func(ctx context.Context, client *redis.Client) error {
				return client.HSetNX(ctx, statsMetaKey, "created_at", time.Now().UTC().Format(time.RFC3339)).Err()
			},
			Down: func(ctx context.Context, client *redis.Client) error {
				return client.Del(ctx, statsKey, statsMetaKey).Err()
			},
		},
	}
}
