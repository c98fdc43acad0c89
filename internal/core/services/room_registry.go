package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
	apperrors "vcv/pkg/errors"
)

// RegistryConfig is applied to every room the registry creates.
type RegistryConfig struct {
	Codecs []domain.RtpCodecCapability
	Room   RoomOptions
}

// RoomRegistry maps room ids to live rooms. Rooms are created on first join
// and dropped as soon as their last peer leaves.
type RoomRegistry struct {
	engine   ports.MediaEngine
	cfg      RegistryConfig
	notifier ports.Notifier
	observer ports.RoomObserver
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	rooms   map[domain.RoomID]*Room
	pending map[domain.RoomID]*pendingRoom
}

// pendingRoom lets concurrent first joins wait on a single router creation.
type pendingRoom struct {
	done chan struct{}
	room *Room
	err  error
}

func NewRoomRegistry(
	engine ports.MediaEngine,
	cfg RegistryConfig,
	notifier ports.Notifier,
	observer ports.RoomObserver,
	logger *zap.SugaredLogger,
) *RoomRegistry {
	if observer == nil {
		observer = NopObserver{}
	}
	return &RoomRegistry{
		engine:   engine,
		cfg:      cfg,
		notifier: notifier,
		observer: observer,
		logger:   logger,
		rooms:    make(map[domain.RoomID]*Room),
		pending:  make(map[domain.RoomID]*pendingRoom),
	}
}

// GetOrCreate returns the room for id, creating it and its router if needed.
// Concurrent callers for an unseen id share one creation. A router failure
// leaves nothing registered.
func (r *RoomRegistry) GetOrCreate(ctx context.Context, id domain.RoomID) (*Room, error) {
	for {
		r.mu.Lock()
		if room, ok := r.rooms[id]; ok {
			r.mu.Unlock()
			return room, nil
		}

		if p, ok := r.pending[id]; ok {
			r.mu.Unlock()
			select {
			case <-p.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if p.err == nil || (isContextErr(p.err) && ctx.Err() == nil) {
				// created, or the creator gave up on its own context
				continue
			}
			return nil, p.err
		}

		p := &pendingRoom{done: make(chan struct{})}
		r.pending[id] = p
		r.mu.Unlock()

		return r.create(ctx, id, p)
	}
}

func (r *RoomRegistry) create(ctx context.Context, id domain.RoomID, p *pendingRoom) (*Room, error) {
	router, err := r.engine.CreateRouter(ctx, r.cfg.Codecs)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	defer close(p.done)

	if err != nil {
		r.logger.Errorw("router creation failed", "room_id", id, "error", err)
		p.err = apperrors.NewEngineFailureError("create router", err)
		return nil, p.err
	}

	room := newRoom(id, router, r.cfg.Room, r.notifier, r.observer, r.logger)
	room.onEmpty = r.reclaim
	r.rooms[id] = room
	p.room = room

	r.observer.RoomCreated(room.Info())
	r.logger.Infow("room created", "room_id", id, "router_id", router.ID())
	return room, nil
}

// Join resolves the room and registers peer in it. A room that closed between
// lookup and join is recreated.
func (r *RoomRegistry) Join(ctx context.Context, id domain.RoomID, peer *PeerSession) (*Room, domain.RtpCapabilities, error) {
	for {
		room, err := r.GetOrCreate(ctx, id)
		if err != nil {
			return nil, domain.RtpCapabilities{}, err
		}

		caps, err := room.Join(peer)
		switch {
		case errors.Is(err, domain.ErrRoomClosed):
			continue
		case err != nil:
			// a freshly created room must not outlive a failed first join
			r.reclaim(room)
			return nil, domain.RtpCapabilities{}, err
		}
		return room, caps, nil
	}
}

// RemoveIfEmpty drops the room registered under id if it has no peers.
func (r *RoomRegistry) RemoveIfEmpty(id domain.RoomID) bool {
	r.mu.Lock()
	room, ok := r.rooms[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.reclaim(room)
}

func (r *RoomRegistry) reclaim(room *Room) bool {
	r.mu.Lock()
	if current, ok := r.rooms[room.ID()]; !ok || current != room || !room.closeIfEmpty() {
		r.mu.Unlock()
		return false
	}
	delete(r.rooms, room.ID())
	r.mu.Unlock()

	room.closeRouter()
	return true
}

func (r *RoomRegistry) Get(id domain.RoomID) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// List returns a snapshot of every live room ordered by id.
func (r *RoomRegistry) List() []domain.RoomInfo {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	infos := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close shuts every room down.
func (r *RoomRegistry) Close() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[domain.RoomID]*Room)
	r.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
