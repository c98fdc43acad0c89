package repositories

import (
	"context"

	"vcv/internal/core/ports"
	"vcv/internal/infrastructure/repositories/memory"
	redisrepo "vcv/internal/infrastructure/repositories/redis"
	"vcv/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when it is enabled. A failed
// connection is logged and the factory falls back to memory repositories.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{cfg: cfg, logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.ClientConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if factory.redisClient == nil {
		logger.Info("using memory repositories")
	}

	return factory
}

// CreateRoomDirectory creates the room directory (Redis or memory with fallback).
// The directory owns the Redis client once created.
func (f *RepositoryFactory) CreateRoomDirectory() ports.RoomDirectory {
	if f.redisClient != nil {
		return redisrepo.NewRoomDirectory(f.redisClient, redisrepo.RoomDirectoryConfig{
			KeyPrefix:      f.cfg.Redis.KeyPrefix,
			RoomTTL:        f.cfg.Redis.RoomTTL,
			BatchSize:      f.cfg.Redis.BatchSize,
			FlushInterval:  f.cfg.Redis.FlushInterval,
			Retry:          f.cfg.Redis.Retry,
			CircuitBreaker: f.cfg.Redis.CircuitBreaker,
		}, f.logger)
	}
	return memory.NewRoomDirectory()
}

// RedisClient returns the connected client, or nil when running on memory.
func (f *RepositoryFactory) RedisClient() redis.UniversalClient {
	if f.redisClient == nil {
		return nil
	}
	return f.redisClient
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
