package webrtc

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

const rembInterval = time.Second

// Transport is an ORTC ICE/DTLS pair. It is ICE controlled: the client
// starts connectivity checks.
type Transport struct {
	id     domain.TransportID
	router *Router
	api    *webrtc.API
	media  *webrtc.MediaEngine

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	iceParams  domain.IceParameters
	candidates []domain.IceCandidate
	dtlsParams domain.DtlsParameters

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	connecting bool
	closed     bool
	maxBitrate int
	nextMid    int
	producers  map[domain.ProducerID]*Producer
	consumers  map[domain.ConsumerID]*Consumer

	logger *zap.SugaredLogger
}

var _ ports.Transport = (*Transport)(nil)

func newTransport(ctx context.Context, router *Router, api *webrtc.API, media *webrtc.MediaEngine, iceServers []webrtc.ICEServer) (*Transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		gatherer.Close()
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		gatherer.Close()
		return nil, ctx.Err()
	}

	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		gatherer.Close()
		return nil, err
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		gatherer.Close()
		return nil, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		gatherer.Close()
		return nil, err
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		gatherer.Close()
		return nil, err
	}

	id := domain.TransportID(uuid.NewString())
	t := &Transport{
		id:         id,
		router:     router,
		api:        api,
		media:      media,
		gatherer:   gatherer,
		ice:        ice,
		dtls:       dtls,
		iceParams:  iceParametersToDomain(iceParams),
		candidates: candidatesToDomain(candidates),
		dtlsParams: dtlsParametersToDomain(dtlsParams),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		producers:  make(map[domain.ProducerID]*Producer),
		consumers:  make(map[domain.ConsumerID]*Consumer),
		logger:     router.engine.logger.With("transport_id", id),
	}
	t.logger.Debugw("transport created", "candidates", len(t.candidates))
	return t, nil
}

func (t *Transport) ID() domain.TransportID               { return t.id }
func (t *Transport) IceParameters() domain.IceParameters   { return t.iceParams }
func (t *Transport) IceCandidates() []domain.IceCandidate  { return t.candidates }
func (t *Transport) DtlsParameters() domain.DtlsParameters { return t.dtlsParams }

// SetMaxIncomingBitrate caps what producers on this transport may send,
// using REMB once the transport is up.
func (t *Transport) SetMaxIncomingBitrate(bps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.maxBitrate = bps
	return nil
}

// Connect starts ICE and DTLS in the background and returns at once.
// Producers and resumed consumers begin flowing when the handshake is done.
func (t *Transport) Connect(_ context.Context, params domain.ConnectParams) error {
	if params.IceParameters == nil {
		return ErrMissingIceParameters
	}
	remoteCandidates, err := candidatesToPion(params.IceCandidates)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.connecting {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connecting = true
	t.mu.Unlock()

	if len(remoteCandidates) > 0 {
		if err := t.ice.SetRemoteCandidates(remoteCandidates); err != nil {
			t.mu.Lock()
			t.connecting = false
			t.mu.Unlock()
			return err
		}
	}

	go t.start(iceParametersToPion(*params.IceParameters), dtlsParametersToPion(params.DtlsParameters))
	return nil
}

func (t *Transport) start(remoteICE webrtc.ICEParameters, remoteDTLS webrtc.DTLSParameters) {
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, remoteICE, &role); err != nil {
		t.logger.Warnw("ICE start failed", "error", err)
		return
	}
	if err := t.dtls.Start(remoteDTLS); err != nil {
		t.logger.Warnw("DTLS handshake failed", "error", err)
		return
	}
	close(t.ready)
	t.logger.Infow("transport connected")

	go t.sendREMB()
}

// whenReady runs fn once the transport is connected, unless it closes first.
func (t *Transport) whenReady(fn func()) {
	go func() {
		select {
		case <-t.ready:
			fn()
		case <-t.done:
		}
	}()
}

func (t *Transport) sendREMB() {
	ticker := time.NewTicker(rembInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		bps := t.maxBitrate
		var ssrcs []uint32
		for _, p := range t.producers {
			ssrcs = append(ssrcs, encodingSSRCs(p.rtp)...)
		}
		t.mu.Unlock()
		if bps <= 0 || len(ssrcs) == 0 {
			continue
		}

		remb := &rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: float32(bps), SSRCs: ssrcs}
		if _, err := t.dtls.WriteRTCP([]rtcp.Packet{remb}); err != nil {
			t.logger.Debugw("REMB not sent", "error", err)
		}
	}
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, rtp domain.RtpParameters) (ports.Producer, error) {
	codec, ok := mediaCodec(rtp)
	if !ok {
		return nil, ErrNoCodecs
	}
	if len(rtp.Encodings) == 0 {
		return nil, ErrNoEncodings
	}
	routerCodec, ok := findCapability(codec, t.router.caps)
	if !ok || routerCodec.Kind != kind {
		return nil, ErrUnsupportedCodec
	}

	// the client's payload types must resolve on this transport
	for _, c := range rtp.Codecs {
		if err := t.media.RegisterCodec(parametersToPion(c), codecTypeOf(kind)); err != nil {
			return nil, err
		}
	}

	receiver, err := t.api.NewRTPReceiver(codecTypeOf(kind), t.dtls)
	if err != nil {
		return nil, err
	}
	id := domain.ProducerID(uuid.NewString())
	local, err := webrtc.NewTrackLocalStaticRTP(parametersToPion(codec).RTPCodecCapability, string(id), string(id))
	if err != nil {
		receiver.Stop()
		return nil, err
	}
	p := newProducer(id, kind, rtp, t, receiver, local)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		receiver.Stop()
		return nil, ErrTransportClosed
	}
	t.producers[id] = p
	t.mu.Unlock()

	t.router.addProducer(p)
	t.whenReady(p.start)
	t.logger.Debugw("producer created", "producer_id", id, "kind", kind, "mime_type", codec.MimeType)
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID domain.ProducerID, _ domain.RtpCapabilities, paused bool) (ports.Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, ErrProducerNotFound
	}
	codec, _ := mediaCodec(p.rtp)
	routerCodec, ok := findCapability(codec, t.router.caps)
	if !ok {
		return nil, ErrUnsupportedCodec
	}

	sender, err := t.api.NewRTPSender(p.local, t.dtls)
	if err != nil {
		return nil, err
	}
	sendParams := sender.GetParameters()
	var ssrc uint32
	if len(sendParams.Encodings) > 0 {
		ssrc = uint32(sendParams.Encodings[0].SSRC)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sender.Stop()
		return nil, ErrTransportClosed
	}
	mid := strconv.Itoa(t.nextMid)
	t.nextMid++
	c := &Consumer{
		id:        domain.ConsumerID(uuid.NewString()),
		producer:  p,
		transport: t,
		sender:    sender,
		paused:    paused,
		rtp: domain.RtpParameters{
			Mid:       mid,
			Codecs:    []domain.RtpCodecParameters{consumerCodec(routerCodec)},
			Encodings: []domain.RtpEncodingParameters{{SSRC: ssrc}},
			Rtcp:      domain.RtcpParameters{Cname: p.rtp.Rtcp.Cname, ReducedSize: true},
		},
	}
	t.consumers[c.id] = c
	t.mu.Unlock()

	if !p.addConsumer(c) {
		c.Close()
		return nil, ErrProducerClosed
	}
	if !paused {
		t.whenReady(c.start)
	}
	t.logger.Debugw("consumer created", "consumer_id", c.id, "producer_id", producerID, "paused", paused)
	return c, nil
}

// Close tears down every producer and consumer on the transport, then the
// DTLS and ICE layers.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	t.closeOnce.Do(func() { close(t.done) })
	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}

	if err := t.dtls.Stop(); err != nil {
		t.logger.Debugw("DTLS stop", "error", err)
	}
	if err := t.ice.Stop(); err != nil {
		t.logger.Debugw("ICE stop", "error", err)
	}
	if err := t.gatherer.Close(); err != nil {
		t.logger.Debugw("ICE gatherer close", "error", err)
	}
	t.router.removeTransport(t.id)
	t.logger.Debugw("transport closed")
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) removeProducer(id domain.ProducerID) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) removeConsumer(id domain.ConsumerID) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}
