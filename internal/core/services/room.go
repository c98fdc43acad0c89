package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
	apperrors "vcv/pkg/errors"
)

// RoomOptions are the per-room media settings.
type RoomOptions struct {
	Transport          domain.TransportOptions
	MaxIncomingBitrate int
	InstanceID         string
}

// Room owns one router and the peers joined to it. All mutations of the peer
// map and of producer ownership happen under mu; media engine calls are made
// outside it and their results registered afterwards.
type Room struct {
	id        domain.RoomID
	router    ports.Router
	opts      RoomOptions
	notifier  ports.Notifier
	observer  ports.RoomObserver
	logger    *zap.SugaredLogger
	createdAt time.Time

	// onEmpty is called after a leave; the registry drops the room and
	// reports true if it has no peers left.
	onEmpty func(*Room) bool

	mu             sync.RWMutex
	closed         bool
	peers          map[domain.PeerID]*PeerSession
	producerOwners map[domain.ProducerID]domain.PeerID
}

func newRoom(
	id domain.RoomID,
	router ports.Router,
	opts RoomOptions,
	notifier ports.Notifier,
	observer ports.RoomObserver,
	logger *zap.SugaredLogger,
) *Room {
	return &Room{
		id:             id,
		router:         router,
		opts:           opts,
		notifier:       notifier,
		observer:       observer,
		logger:         logger.With("room_id", id),
		createdAt:      time.Now(),
		peers:          make(map[domain.PeerID]*PeerSession),
		producerOwners: make(map[domain.ProducerID]domain.PeerID),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Join registers peer and returns the router capabilities the client must
// use for later capability matching.
func (r *Room) Join(peer *PeerSession) (domain.RtpCapabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.RtpCapabilities{}, domain.ErrRoomClosed
	}
	if _, exists := r.peers[peer.ID()]; exists {
		return domain.RtpCapabilities{}, domain.ErrPeerAlreadyJoined
	}
	r.peers[peer.ID()] = peer
	r.notifyUpdatedLocked()

	r.logger.Infow("peer joined", "peer_id", peer.ID(), "name", peer.Name(), "role", peer.Role())
	return r.router.RtpCapabilities(), nil
}

// Leave closes everything the peer owns and removes it. It reports whether
// the peer was present; leaving twice is a no-op.
func (r *Room) Leave(peerID domain.PeerID) bool {
	r.mu.Lock()
	peer, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.peers, peerID)

	departed := make(map[domain.ProducerID]struct{})
	for producerID, owner := range r.producerOwners {
		if owner == peerID {
			departed[producerID] = struct{}{}
			delete(r.producerOwners, producerID)
		}
	}
	var orphaned []ports.Consumer
	for _, other := range r.peers {
		orphaned = append(orphaned, other.DetachConsumersOf(departed)...)
	}
	r.notifyUpdatedLocked()
	r.mu.Unlock()

	if err := peer.Close(); err != nil {
		r.logger.Warnw("closing peer transports", "peer_id", peerID, "error", err)
	}
	for _, c := range orphaned {
		if err := c.Close(); err != nil {
			r.logger.Debugw("closing orphaned consumer", "consumer_id", c.ID(), "error", err)
		}
	}

	r.logger.Infow("peer left", "peer_id", peerID, "producers_closed", len(departed), "consumers_pruned", len(orphaned))

	if r.onEmpty != nil {
		r.onEmpty(r)
	}
	return true
}

// ListOtherProducers returns the open producers of every peer but exclude.
func (r *Room) ListOtherProducers(exclude domain.PeerID) []domain.ProducerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ProducerID, 0, len(r.producerOwners))
	for id, peer := range r.peers {
		if id == exclude {
			continue
		}
		ids = append(ids, peer.ProducerIDs()...)
	}
	return ids
}

// CreateTransport opens a new WebRTC transport for the peer. A rejected
// incoming bitrate cap only costs a warning.
func (r *Room) CreateTransport(ctx context.Context, peerID domain.PeerID) (domain.TransportParams, error) {
	peer, ok := r.Peer(peerID)
	if !ok {
		return domain.TransportParams{}, domain.ErrPeerNotFound
	}

	t, err := r.router.CreateWebRtcTransport(ctx, r.opts.Transport)
	if err != nil {
		return domain.TransportParams{}, apperrors.NewEngineFailureError("create transport", err)
	}

	if r.opts.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(r.opts.MaxIncomingBitrate); err != nil {
			r.logger.Warnw("max incoming bitrate not applied", "peer_id", peerID, "transport_id", t.ID(), "error", err)
		}
	}

	if !r.register(peerID, peer, func() bool { return peer.AddTransport(t) }) {
		_ = t.Close()
		return domain.TransportParams{}, domain.ErrPeerClosed
	}

	r.logger.Debugw("transport created", "peer_id", peerID, "transport_id", t.ID())
	return domain.TransportParams{
		ID:             t.ID(),
		IceParameters:  t.IceParameters(),
		IceCandidates:  t.IceCandidates(),
		DtlsParameters: t.DtlsParameters(),
	}, nil
}

// ConnectTransport completes ICE/DTLS on one of the peer's transports.
// Unknown peers and transports are ignored.
func (r *Room) ConnectTransport(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, params domain.ConnectParams) error {
	t, ok := r.transport(peerID, transportID)
	if !ok {
		r.logger.Debugw("connect for unknown transport ignored", "peer_id", peerID, "transport_id", transportID)
		return nil
	}
	if err := t.Connect(ctx, params); err != nil {
		return apperrors.NewEngineFailureError("connect transport", err)
	}
	r.logger.Debugw("transport connected", "peer_id", peerID, "transport_id", transportID)
	return nil
}

// Produce creates a producer and announces it to every other peer once it is
// registered.
func (r *Room) Produce(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, kind domain.MediaKind, rtp domain.RtpParameters) (domain.ProducerID, error) {
	if !kind.Valid() {
		return "", domain.ErrUnsupportedKind
	}
	peer, ok := r.Peer(peerID)
	if !ok {
		return "", domain.ErrPeerNotFound
	}
	t, ok := peer.Transport(transportID)
	if !ok {
		return "", domain.ErrTransportNotFound
	}

	producer, err := t.Produce(ctx, kind, rtp)
	if err != nil {
		return "", apperrors.NewEngineFailureError("produce", err)
	}

	registered := r.register(peerID, peer, func() bool {
		if !peer.AddProducer(producer) {
			return false
		}
		r.producerOwners[producer.ID()] = peerID
		r.broadcastLocked(peerID, domain.EventNewProducer, domain.NewProducerEvent{
			ProducerID: producer.ID(),
			PeerID:     peerID,
		})
		return true
	})
	if !registered {
		_ = producer.Close()
		return "", domain.ErrPeerClosed
	}

	r.logger.Infow("producer created", "peer_id", peerID, "producer_id", producer.ID(), "kind", kind)
	return producer.ID(), nil
}

// Consume subscribes the peer to producerID on one of its transports. The
// consumer starts paused. ErrCannotConsume is a refusal, not a failure.
func (r *Room) Consume(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, producerID domain.ProducerID, caps domain.RtpCapabilities) (*domain.ConsumerParams, error) {
	peer, ok := r.Peer(peerID)
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	t, ok := peer.Transport(transportID)
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	if !r.hasProducer(producerID) {
		return nil, domain.ErrProducerNotFound
	}
	if !r.router.CanConsume(producerID, caps) {
		return nil, domain.ErrCannotConsume
	}

	consumer, err := t.Consume(ctx, producerID, caps, true)
	if err != nil {
		return nil, apperrors.NewEngineFailureError("consume", err)
	}

	var producerGone bool
	registered := r.register(peerID, peer, func() bool {
		// the producer's owner may have left while the engine call ran
		if _, ok := r.producerOwners[producerID]; !ok {
			producerGone = true
			return false
		}
		return peer.AddConsumer(consumer)
	})
	if !registered {
		_ = consumer.Close()
		if producerGone {
			return nil, domain.ErrProducerNotFound
		}
		return nil, domain.ErrPeerClosed
	}

	r.logger.Debugw("consumer created", "peer_id", peerID, "consumer_id", consumer.ID(), "producer_id", producerID)
	return &domain.ConsumerParams{
		ID:            consumer.ID(),
		ProducerID:    producerID,
		Kind:          consumer.Kind(),
		RtpParameters: consumer.RtpParameters(),
	}, nil
}

// ResumeConsumer starts media flow on a paused consumer. Unknown ids are
// ignored.
func (r *Room) ResumeConsumer(ctx context.Context, peerID domain.PeerID, consumerID domain.ConsumerID) error {
	peer, ok := r.Peer(peerID)
	if !ok {
		return nil
	}
	c, ok := peer.Consumer(consumerID)
	if !ok {
		return nil
	}
	if err := c.Resume(ctx); err != nil {
		return apperrors.NewEngineFailureError("resume consumer", err)
	}
	return nil
}

// Broadcast delivers event to every peer except sender.
func (r *Room) Broadcast(sender domain.PeerID, event string, payload interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.broadcastLocked(sender, event, payload)
}

func (r *Room) Peer(id domain.PeerID) (*PeerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Room) RtpCapabilities() domain.RtpCapabilities {
	return r.router.RtpCapabilities()
}

// Info returns a snapshot of the room.
func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infoLocked()
}

// Close evicts every peer and closes the router. Used on shutdown; peers are
// not notified.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	peers := r.peers
	r.peers = make(map[domain.PeerID]*PeerSession)
	r.producerOwners = make(map[domain.ProducerID]domain.PeerID)
	r.observer.RoomClosed(r.id)
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.Close()
	}
	r.closeRouter()
}

// closeIfEmpty marks the room closed when it has no peers. The caller
// removes it from the registry and closes the router.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.peers) > 0 {
		return false
	}
	r.closed = true
	r.observer.RoomClosed(r.id)
	return true
}

func (r *Room) closeRouter() {
	if err := r.router.Close(); err != nil {
		r.logger.Warnw("closing router", "error", err)
	}
	r.logger.Infow("room closed")
}

// register runs add under the write lock if peerID is still joined as
// peer. It reports whether add succeeded.
func (r *Room) register(peerID domain.PeerID, peer *PeerSession, add func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[peerID]; !ok || current != peer {
		return false
	}
	if !add() {
		return false
	}
	r.notifyUpdatedLocked()
	return true
}

func (r *Room) transport(peerID domain.PeerID, transportID domain.TransportID) (ports.Transport, bool) {
	peer, ok := r.Peer(peerID)
	if !ok {
		return nil, false
	}
	return peer.Transport(transportID)
}

func (r *Room) hasProducer(id domain.ProducerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.producerOwners[id]
	return ok
}

func (r *Room) broadcastLocked(sender domain.PeerID, event string, payload interface{}) {
	for id := range r.peers {
		if id == sender {
			continue
		}
		r.notifier.Notify(id, event, payload)
	}
}

func (r *Room) infoLocked() domain.RoomInfo {
	info := domain.RoomInfo{
		ID:         r.id,
		InstanceID: r.opts.InstanceID,
		Peers:      len(r.peers),
		CreatedAt:  r.createdAt,
		UpdatedAt:  time.Now(),
	}
	for _, p := range r.peers {
		_, producers, consumers := p.Counts()
		info.Producers += producers
		info.Consumers += consumers
	}
	return info
}

func (r *Room) notifyUpdatedLocked() {
	r.observer.RoomUpdated(r.infoLocked())
}
