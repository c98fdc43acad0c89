package ports

import (
	"context"

	"vcv/internal/core/domain"
)

// RoomDirectory records the rooms live on this and, when shared, other
// instances.
type RoomDirectory interface {
	Upsert(ctx context.Context, info domain.RoomInfo) error
	Remove(ctx context.Context, id domain.RoomID) error
	Get(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error)
	List(ctx context.Context) ([]domain.RoomInfo, error)
	Close() error
}
