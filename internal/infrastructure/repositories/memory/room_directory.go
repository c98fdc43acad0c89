package memory

import (
	"context"
	"sort"
	"sync"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

type RoomDirectory struct {
	rooms map[domain.RoomID]domain.RoomInfo
	mu    sync.RWMutex
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[domain.RoomID]domain.RoomInfo),
	}
}

var _ ports.RoomDirectory = (*RoomDirectory)(nil)

func (r *RoomDirectory) Upsert(ctx context.Context, info domain.RoomInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[info.ID] = info
	return nil
}

func (r *RoomDirectory) Remove(ctx context.Context, id domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, id)
	return nil
}

func (r *RoomDirectory) Get(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return &info, nil
}

func (r *RoomDirectory) List(ctx context.Context) ([]domain.RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]domain.RoomInfo, 0, len(r.rooms))
	for _, info := range r.rooms {
		rooms = append(rooms, info)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (r *RoomDirectory) Close() error { return nil }
