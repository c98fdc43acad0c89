package services

import (
	"sync"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// PeerSession is the bookkeeping for one joined connection. It owns every
// transport, producer and consumer created on the peer's behalf.
type PeerSession struct {
	info domain.PeerInfo

	mu         sync.Mutex
	closed     bool
	transports map[domain.TransportID]ports.Transport
	producers  map[domain.ProducerID]ports.Producer
	consumers  map[domain.ConsumerID]ports.Consumer
}

func NewPeerSession(info domain.PeerInfo) *PeerSession {
	if info.Role == "" {
		info.Role = domain.RoleAttendee
	}
	return &PeerSession{
		info:       info,
		transports: make(map[domain.TransportID]ports.Transport),
		producers:  make(map[domain.ProducerID]ports.Producer),
		consumers:  make(map[domain.ConsumerID]ports.Consumer),
	}
}

func (p *PeerSession) ID() domain.PeerID     { return p.info.ID }
func (p *PeerSession) Name() string          { return p.info.Name }
func (p *PeerSession) Role() domain.Role     { return p.info.Role }
func (p *PeerSession) Info() domain.PeerInfo { return p.info }

// AddTransport registers t. It returns false once the session is closed;
// the caller then owns t and must close it.
func (p *PeerSession) AddTransport(t ports.Transport) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.transports[t.ID()] = t
	return true
}

func (p *PeerSession) Transport(id domain.TransportID) (ports.Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.transports[id]
	return t, ok
}

// AddProducer follows the AddTransport contract.
func (p *PeerSession) AddProducer(pr ports.Producer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.producers[pr.ID()] = pr
	return true
}

func (p *PeerSession) Producer(id domain.ProducerID) (ports.Producer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.producers[id]
	return pr, ok
}

// ProducerIDs lists the producers still open.
func (p *PeerSession) ProducerIDs() []domain.ProducerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]domain.ProducerID, 0, len(p.producers))
	for id, pr := range p.producers {
		if !pr.Closed() {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddConsumer follows the AddTransport contract.
func (p *PeerSession) AddConsumer(c ports.Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers[c.ID()] = c
	return true
}

func (p *PeerSession) Consumer(id domain.ConsumerID) (ports.Consumer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.consumers[id]
	return c, ok
}

// DetachConsumersOf removes and returns the consumers reading any of the
// given producers. Closing them is left to the caller.
func (p *PeerSession) DetachConsumersOf(producers map[domain.ProducerID]struct{}) []ports.Consumer {
	if len(producers) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var detached []ports.Consumer
	for id, c := range p.consumers {
		if _, ok := producers[c.ProducerID()]; ok {
			detached = append(detached, c)
			delete(p.consumers, id)
		}
	}
	return detached
}

// Counts returns the number of open transports, producers and consumers.
func (p *PeerSession) Counts() (transports, producers, consumers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		if !t.Closed() {
			transports++
		}
	}
	for _, pr := range p.producers {
		if !pr.Closed() {
			producers++
		}
	}
	for _, c := range p.consumers {
		if !c.Closed() {
			consumers++
		}
	}
	return
}

func (p *PeerSession) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes every owned transport; the engine cascades the close to the
// producers and consumers living on them. The session forgets all of its
// resources and rejects new ones. Safe to call more than once.
func (p *PeerSession) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	transports := p.transports
	p.transports = make(map[domain.TransportID]ports.Transport)
	p.producers = make(map[domain.ProducerID]ports.Producer)
	p.consumers = make(map[domain.ConsumerID]ports.Consumer)
	p.mu.Unlock()

	var firstErr error
	for _, t := range transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
