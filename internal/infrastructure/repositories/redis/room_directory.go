package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
	"vcv/pkg/batch"
	"vcv/pkg/circuitbreaker"
	"vcv/pkg/retry"
)

type RoomDirectoryConfig struct {
	KeyPrefix      string
	RoomTTL        time.Duration
	BatchSize      int
	FlushInterval  time.Duration
	Retry          retry.Config
	CircuitBreaker circuitbreaker.Config
}

// RoomDirectory keeps one hash per room plus a set of room ids. Writes are
// coalesced per room and sent as one pipeline; reads go straight to Redis.
// Both sit behind a circuit breaker.
type RoomDirectory struct {
	client  redis.UniversalClient
	cfg     RoomDirectoryConfig
	breaker *circuitbreaker.CircuitBreaker
	batcher *batch.Batcher[domain.RoomID, *domain.RoomInfo]
	logger  *zap.SugaredLogger
}

var _ ports.RoomDirectory = (*RoomDirectory)(nil)

func NewRoomDirectory(client redis.UniversalClient, cfg RoomDirectoryConfig, logger *zap.SugaredLogger) *RoomDirectory {
	d := &RoomDirectory{
		client:  client,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.CircuitBreaker),
		logger:  logger,
	}
	d.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("redis circuit breaker state changed", "from", from, "to", to)
	})
	d.batcher = batch.NewBatcher[domain.RoomID, *domain.RoomInfo](cfg.BatchSize, cfg.FlushInterval, d.write, func(err error) {
		logger.Warnw("room directory flush failed", "error", err)
	})
	return d
}

func roomIndexKey(prefix string) string { return prefix + "rooms" }

func (d *RoomDirectory) roomKey(id domain.RoomID) string {
	return d.cfg.KeyPrefix + "room:" + string(id)
}

// Upsert queues the snapshot; only the newest snapshot per room is written.
func (d *RoomDirectory) Upsert(ctx context.Context, info domain.RoomInfo) error {
	d.batcher.Add(info.ID, &info)
	return nil
}

func (d *RoomDirectory) Remove(ctx context.Context, id domain.RoomID) error {
	d.batcher.Add(id, nil)
	return nil
}

func (d *RoomDirectory) write(ctx context.Context, items []batch.Item[domain.RoomID, *domain.RoomInfo]) error {
	return d.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, d.cfg.Retry, func() error {
			pipe := d.client.TxPipeline()
			index := roomIndexKey(d.cfg.KeyPrefix)
			for _, item := range items {
				key := d.roomKey(item.Key)
				if item.Value == nil {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, index, string(item.Key))
					continue
				}
				pipe.HSet(ctx, key, encodeRoom(*item.Value))
				if d.cfg.RoomTTL > 0 {
					pipe.Expire(ctx, key, d.cfg.RoomTTL)
				}
				pipe.SAdd(ctx, index, string(item.Key))
			}
			_, err := pipe.Exec(ctx)
			return err
		})
	})
}

func (d *RoomDirectory) Get(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	var fields map[string]string
	err := d.breaker.Execute(ctx, func() error {
		var err error
		fields, err = d.client.HGetAll(ctx, d.roomKey(id)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	info, err := decodeRoom(fields)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// List returns every indexed room. Index entries whose hash has expired are
// pruned on the way.
func (d *RoomDirectory) List(ctx context.Context) ([]domain.RoomInfo, error) {
	index := roomIndexKey(d.cfg.KeyPrefix)

	var ids []string
	var cmds []*redis.MapStringStringCmd
	err := d.breaker.Execute(ctx, func() error {
		var err error
		ids, err = d.client.SMembers(ctx, index).Result()
		if err != nil || len(ids) == 0 {
			return err
		}
		pipe := d.client.Pipeline()
		cmds = make([]*redis.MapStringStringCmd, len(ids))
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, d.roomKey(domain.RoomID(id)))
		}
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}

	rooms := make([]domain.RoomInfo, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		info, err := decodeRoom(fields)
		if err != nil {
			d.logger.Warnw("skipping malformed room entry", "room_id", ids[i], "error", err)
			continue
		}
		rooms = append(rooms, info)
	}

	if len(stale) > 0 {
		if err := d.client.SRem(ctx, index, stale...).Err(); err != nil {
			d.logger.Debugw("failed to prune room index", "error", err)
		}
	}
	return rooms, nil
}

// Flush writes pending snapshots now.
func (d *RoomDirectory) Flush(ctx context.Context) error {
	return d.batcher.Flush(ctx)
}

// Close writes what is pending and closes the client.
func (d *RoomDirectory) Close() error {
	d.batcher.Stop()
	return d.client.Close()
}

func encodeRoom(info domain.RoomInfo) map[string]interface{} {
	return map[string]interface{}{
		"id":          string(info.ID),
		"instance_id": info.InstanceID,
		"peers":       info.Peers,
		"producers":   info.Producers,
		"consumers":   info.Consumers,
		"created_at":  info.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  info.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

var errMalformedRoom = errors.New("malformed room entry")

func decodeRoom(fields map[string]string) (domain.RoomInfo, error) {
	info := domain.RoomInfo{
		ID:         domain.RoomID(fields["id"]),
		InstanceID: fields["instance_id"],
	}
	if info.ID == "" {
		return domain.RoomInfo{}, errMalformedRoom
	}

	var err error
	counts := []struct {
		field string
		dst   *int
	}{
		{"peers", &info.Peers},
		{"producers", &info.Producers},
		{"consumers", &info.Consumers},
	}
	for _, c := range counts {
		if *c.dst, err = strconv.Atoi(fields[c.field]); err != nil {
			return domain.RoomInfo{}, fmt.Errorf("%w: %s: %v", errMalformedRoom, c.field, err)
		}
	}
	if info.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("%w: created_at: %v", errMalformedRoom, err)
	}
	if info.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("%w: updated_at: %v", errMalformedRoom, err)
	}
	return info, nil
}
