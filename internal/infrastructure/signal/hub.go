package signal

import (
	"sync"

	"go.uber.org/zap"

	"vcv/internal/core/domain"
)

// Connection is the delivery side of one signaling client.
type Connection interface {
	ID() domain.PeerID
	// Send queues v for delivery without blocking. It returns false when
	// the connection is gone or cannot keep up.
	Send(v interface{}) bool
}

// Hub tracks live connections and delivers push events to them. It is the
// rooms' notifier.
type Hub struct {
	mu     sync.RWMutex
	conns  map[domain.PeerID]Connection
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		conns:  make(map[domain.PeerID]Connection),
		logger: logger,
	}
}

func (h *Hub) Register(c Connection) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
}

// Unregister removes c if it is still the connection registered for its id.
func (h *Hub) Unregister(c Connection) {
	h.mu.Lock()
	if current, ok := h.conns[c.ID()]; ok && current == c {
		delete(h.conns, c.ID())
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Notify implements ports.Notifier.
func (h *Hub) Notify(peerID domain.PeerID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.conns[peerID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debugw("push to unknown connection dropped", "peer_id", peerID, "event", event)
		return
	}
	if !c.Send(Push{Type: event, Payload: payload}) {
		h.logger.Warnw("push not delivered", "peer_id", peerID, "event", event)
	}
}
