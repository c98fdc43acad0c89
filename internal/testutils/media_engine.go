package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// MediaEngine is an in-memory media engine. It keeps the ownership graph of
// a real engine (router > transport > producer/consumer, with cascading
// close) without touching the network.
type MediaEngine struct {
	// CreateRouterHook runs before each router creation; a non-nil error
	// fails it.
	CreateRouterHook func(ctx context.Context) error
	// TransportHook customizes each transport before it is returned.
	TransportHook func(t *Transport)

	routersCreated atomic.Int32
	ids            atomic.Int64

	mu      sync.Mutex
	routers []*Router
}

func NewMediaEngine() *MediaEngine {
	return &MediaEngine{}
}

func (e *MediaEngine) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (ports.Router, error) {
	if e.CreateRouterHook != nil {
		if err := e.CreateRouterHook(ctx); err != nil {
			return nil, err
		}
	}
	e.routersCreated.Add(1)

	r := &Router{
		engine:    e,
		id:        e.nextID("router"),
		codecs:    codecs,
		producers: make(map[domain.ProducerID]*Producer),
	}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

func (e *MediaEngine) Close() error { return nil }

// RoutersCreated counts successful router creations.
func (e *MediaEngine) RoutersCreated() int { return int(e.routersCreated.Load()) }

func (e *MediaEngine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Router(nil), e.routers...)
}

func (e *MediaEngine) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.ids.Add(1))
}

type Router struct {
	engine *MediaEngine
	id     string
	codecs []domain.RtpCodecCapability

	mu         sync.Mutex
	closed     bool
	transports []*Transport
	producers  map[domain.ProducerID]*Producer
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{Codecs: r.codecs}
}

// CanConsume requires an open producer and a codec in caps sharing the
// producer's mime type.
func (r *Router) CanConsume(producerID domain.ProducerID, caps domain.RtpCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok || p.Closed() || len(p.rtp.Codecs) == 0 {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, p.rtp.Codecs[0].MimeType) {
			return true
		}
	}
	return false
}

func (r *Router) CreateWebRtcTransport(_ context.Context, opts domain.TransportOptions) (ports.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("router closed")
	}

	id := r.engine.nextID("transport")
	t := &Transport{
		router: r,
		id:     domain.TransportID(id),
		ice:    domain.IceParameters{UsernameFragment: "ufrag-" + id, Password: "pwd-" + id},
		candidates: []domain.IceCandidate{{
			Foundation: "1", Priority: 2130706431, IP: opts.AnnouncedIP,
			Protocol: "udp", Port: 10000, Type: "host",
		}},
		dtls: domain.DtlsParameters{
			Role:         domain.DtlsRoleAuto,
			Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
		},
	}
	if r.engine.TransportHook != nil {
		r.engine.TransportHook(t)
	}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := r.transports
	r.mu.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
	return nil
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Transport(nil), r.transports...)
}

func (r *Router) producer(id domain.ProducerID) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

type Transport struct {
	router     *Router
	id         domain.TransportID
	ice        domain.IceParameters
	candidates []domain.IceCandidate
	dtls       domain.DtlsParameters

	// Failure injection.
	BitrateErr error
	ConnectErr error
	ProduceErr error
	ConsumeErr error

	mu         sync.Mutex
	closed     bool
	connected  *domain.ConnectParams
	maxBitrate int
	producers  []*Producer
	consumers  []*Consumer
}

func (t *Transport) ID() domain.TransportID               { return t.id }
func (t *Transport) IceParameters() domain.IceParameters   { return t.ice }
func (t *Transport) IceCandidates() []domain.IceCandidate  { return t.candidates }
func (t *Transport) DtlsParameters() domain.DtlsParameters { return t.dtls }

func (t *Transport) SetMaxIncomingBitrate(bps int) error {
	if t.BitrateErr != nil {
		return t.BitrateErr
	}
	t.mu.Lock()
	t.maxBitrate = bps
	t.mu.Unlock()
	return nil
}

func (t *Transport) MaxIncomingBitrate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxBitrate
}

func (t *Transport) Connect(_ context.Context, params domain.ConnectParams) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.connected = &params
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected != nil
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, rtp domain.RtpParameters) (ports.Producer, error) {
	if t.ProduceErr != nil {
		return nil, t.ProduceErr
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	p := &Producer{
		id:   domain.ProducerID(t.router.engine.nextID("producer")),
		kind: kind,
		rtp:  rtp,
	}
	t.producers = append(t.producers, p)
	t.mu.Unlock()

	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID domain.ProducerID, _ domain.RtpCapabilities, paused bool) (ports.Consumer, error) {
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	p, ok := t.router.producer(producerID)
	if !ok || p.Closed() {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	c := &Consumer{
		id:       domain.ConsumerID(t.router.engine.nextID("consumer")),
		producer: p,
		rtp:      p.rtp,
		paused:   paused,
	}
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()

	p.mu.Lock()
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
	return c, nil
}

// Close closes the transport and everything created on it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.mu.Unlock()

	for _, p := range producers {
		_ = p.Close()
	}
	for _, c := range consumers {
		_ = c.Close()
	}
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	id   domain.ProducerID
	kind domain.MediaKind
	rtp  domain.RtpParameters

	mu        sync.Mutex
	closed    bool
	consumers []*Consumer
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

// Close closes the producer and the consumers reading it.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := p.consumers
	p.mu.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}
	return nil
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	id       domain.ConsumerID
	producer *Producer
	rtp      domain.RtpParameters

	ResumeErr error

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *Consumer) ID() domain.ConsumerID               { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID       { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind              { return c.producer.kind }
func (c *Consumer) RtpParameters() domain.RtpParameters { return c.rtp }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Resume(context.Context) error {
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("consumer closed")
	}
	c.paused = false
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
