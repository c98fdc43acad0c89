package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddDirectoryCheck verifies the room directory answers queries.
func (h *HealthChecker) AddDirectoryCheck(dir ports.RoomDirectory, interval, timeout time.Duration) {
	h.AddCheck("room_directory", func(ctx context.Context) (bool, error) {
		if _, err := dir.List(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddMediaCheck verifies the media engine can still build a router for the
// configured codecs.
func (h *HealthChecker) AddMediaCheck(engine ports.MediaEngine, codecs []domain.RtpCodecCapability, interval, timeout time.Duration) {
	h.AddCheck("media", func(ctx context.Context) (bool, error) {
		router, err := engine.CreateRouter(ctx, codecs)
		if err != nil {
			return false, err
		}
		return true, router.Close()
	}, interval, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Healthy()
}
