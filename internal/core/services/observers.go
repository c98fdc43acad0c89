package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// NopObserver ignores every room event.
type NopObserver struct{}

func (NopObserver) RoomCreated(domain.RoomInfo) {}
func (NopObserver) RoomUpdated(domain.RoomInfo) {}
func (NopObserver) RoomClosed(domain.RoomID)    {}

// MultiObserver fans events out in order.
type MultiObserver []ports.RoomObserver

func (m MultiObserver) RoomCreated(info domain.RoomInfo) {
	for _, o := range m {
		o.RoomCreated(info)
	}
}

func (m MultiObserver) RoomUpdated(info domain.RoomInfo) {
	for _, o := range m {
		o.RoomUpdated(info)
	}
}

func (m MultiObserver) RoomClosed(id domain.RoomID) {
	for _, o := range m {
		o.RoomClosed(id)
	}
}

// DirectorySync mirrors room snapshots into a RoomDirectory. The directory
// is expected to buffer writes; failures are logged and dropped.
type DirectorySync struct {
	directory ports.RoomDirectory
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

func NewDirectorySync(directory ports.RoomDirectory, logger *zap.SugaredLogger) *DirectorySync {
	return &DirectorySync{directory: directory, timeout: time.Second, logger: logger}
}

func (d *DirectorySync) RoomCreated(info domain.RoomInfo) { d.upsert(info) }
func (d *DirectorySync) RoomUpdated(info domain.RoomInfo) { d.upsert(info) }

func (d *DirectorySync) RoomClosed(id domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.directory.Remove(ctx, id); err != nil {
		d.logger.Warnw("room directory remove failed", "room_id", id, "error", err)
	}
}

func (d *DirectorySync) upsert(info domain.RoomInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.directory.Upsert(ctx, info); err != nil {
		d.logger.Warnw("room directory upsert failed", "room_id", info.ID, "error", err)
	}
}

// Refresh re-upserts the snapshot returned by rooms every interval until ctx
// is done, keeping directory entries alive for rooms that see no changes.
func (d *DirectorySync) Refresh(ctx context.Context, interval time.Duration, rooms func() []domain.RoomInfo) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			infos := rooms()
			for _, info := range infos {
				d.upsert(info)
			}
			if len(infos) > 0 {
				d.logger.Debugw("room directory refreshed", "rooms", len(infos))
			}
		}
	}
}
