package repositories

import (
	"context"
	"time"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
	"vcv/pkg/cache"
)

const roomKeyPrefix = "room:"
const listKey = "list"

// CachedRoomDirectory serves directory reads from a short-lived cache.
// Local writes and Invalidate drop the affected entries.
type CachedRoomDirectory struct {
	base  ports.RoomDirectory
	rooms *cache.Cache[*domain.RoomInfo]
	lists *cache.Cache[[]domain.RoomInfo]
}

var _ ports.RoomDirectory = (*CachedRoomDirectory)(nil)

func NewCachedRoomDirectory(base ports.RoomDirectory, ttl time.Duration) *CachedRoomDirectory {
	return &CachedRoomDirectory{
		base:  base,
		rooms: cache.New[*domain.RoomInfo](ttl),
		lists: cache.New[[]domain.RoomInfo](ttl),
	}
}

func (d *CachedRoomDirectory) Upsert(ctx context.Context, info domain.RoomInfo) error {
	d.Invalidate(info.ID)
	return d.base.Upsert(ctx, info)
}

func (d *CachedRoomDirectory) Remove(ctx context.Context, id domain.RoomID) error {
	d.Invalidate(id)
	return d.base.Remove(ctx, id)
}

// Get caches hits only; a missing room is looked up again next time.
func (d *CachedRoomDirectory) Get(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	info, err := d.rooms.GetOrSet(ctx, roomKeyPrefix+string(id), func(ctx context.Context) (*domain.RoomInfo, error) {
		return d.base.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	out := *info
	return &out, nil
}

func (d *CachedRoomDirectory) List(ctx context.Context) ([]domain.RoomInfo, error) {
	rooms, err := d.lists.GetOrSet(ctx, listKey, d.base.List)
	if err != nil {
		return nil, err
	}
	return append([]domain.RoomInfo(nil), rooms...), nil
}

// Invalidate drops what is cached for one room, e.g. after another
// instance announced a change.
func (d *CachedRoomDirectory) Invalidate(id domain.RoomID) {
	d.rooms.Delete(roomKeyPrefix + string(id))
	d.lists.Delete(listKey)
}

func (d *CachedRoomDirectory) Close() error {
	d.rooms.Stop()
	d.lists.Stop()
	return d.base.Close()
}
