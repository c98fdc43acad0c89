package webrtc

import (
	"context"
	"sync"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// Router groups the transports of one room and knows every producer on
// them, so any transport can consume any producer.
type Router struct {
	id     string
	engine *Engine
	caps   domain.RtpCapabilities

	mu         sync.RWMutex
	closed     bool
	transports map[domain.TransportID]*Transport
	producers  map[domain.ProducerID]*Producer
}

func newRouter(id string, engine *Engine, caps domain.RtpCapabilities) *Router {
	return &Router{
		id:         id,
		engine:     engine,
		caps:       caps,
		transports: make(map[domain.TransportID]*Transport),
		producers:  make(map[domain.ProducerID]*Producer),
	}
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() domain.RtpCapabilities { return r.caps }

func (r *Router) CanConsume(producerID domain.ProducerID, caps domain.RtpCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok {
		return false
	}
	return canConsume(p.rtp, caps)
}

func (r *Router) CreateWebRtcTransport(ctx context.Context, opts domain.TransportOptions) (ports.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}

	api, media, err := r.engine.newAPI(opts, r.caps)
	if err != nil {
		return nil, err
	}
	t, err := newTransport(ctx, r, api, media, r.engine.config.ICEServers)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()

	if opts.InitialAvailableOutgoingBitrate > 0 {
		r.engine.logger.Debugw("initial outgoing bitrate is estimated by the congestion controller",
			"transport_id", t.id, "bitrate", opts.InitialAvailableOutgoingBitrate)
	}
	return t, nil
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.engine.removeRouter(r.id)
	r.engine.logger.Debugw("router closed", "router_id", r.id)
	return nil
}

func (r *Router) producer(id domain.ProducerID) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) removeProducer(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) removeTransport(id domain.TransportID) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}
