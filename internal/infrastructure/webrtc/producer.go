package webrtc

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// Producer receives one track from a client and fans it out through a
// local static track bound by every resumed consumer.
type Producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	rtp       domain.RtpParameters
	transport *Transport
	receiver  *webrtc.RTPReceiver
	local     *webrtc.TrackLocalStaticRTP

	mu        sync.Mutex
	closed    bool
	consumers map[domain.ConsumerID]*Consumer
}

var _ ports.Producer = (*Producer)(nil)

func newProducer(id domain.ProducerID, kind domain.MediaKind, rtp domain.RtpParameters, t *Transport, receiver *webrtc.RTPReceiver, local *webrtc.TrackLocalStaticRTP) *Producer {
	return &Producer{
		id:        id,
		kind:      kind,
		rtp:       rtp,
		transport: t,
		receiver:  receiver,
		local:     local,
		consumers: make(map[domain.ConsumerID]*Consumer),
	}
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) start() {
	if p.Closed() {
		return
	}
	if err := p.receiver.Receive(receiveParameters(p.rtp)); err != nil {
		p.transport.logger.Warnw("producer receive failed", "producer_id", p.id, "error", err)
		return
	}
	go p.forward()
	go p.drainRTCP()
}

const receiveMTU = 1500

func (p *Producer) forward() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	buf := make([]byte, receiveMTU)
	pkt := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.transport.logger.Debugw("producer read ended", "producer_id", p.id, "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		// Extension ids belong to the publisher's negotiation, not the consumers'.
		pkt.Header.Extension = false
		pkt.Header.ExtensionProfile = 0
		pkt.Header.Extensions = nil

		if err := p.local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			p.transport.logger.Debugw("forward failed", "producer_id", p.id, "error", err)
		}
	}
}

// drainRTCP keeps the receiver's interceptors fed.
func (p *Producer) drainRTCP() {
	for {
		if _, _, err := p.receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

// requestKeyFrame asks the sending client for a new key frame.
func (p *Producer) requestKeyFrame() {
	if p.kind != domain.MediaKindVideo {
		return
	}
	ssrcs := encodingSSRCs(p.rtp)
	pkts := make([]rtcp.Packet, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		pkts = append(pkts, &rtcp.PictureLossIndication{MediaSSRC: ssrc})
	}
	if len(pkts) == 0 {
		return
	}
	if _, err := p.transport.dtls.WriteRTCP(pkts); err != nil {
		p.transport.logger.Debugw("PLI not sent", "producer_id", p.id, "error", err)
	}
}

func (p *Producer) addConsumer(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers[c.id] = c
	return true
}

func (p *Producer) removeConsumer(id domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

// Close stops reception and closes every consumer of this producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = make(map[domain.ConsumerID]*Consumer)
	p.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	if err := p.receiver.Stop(); err != nil {
		p.transport.logger.Debugw("receiver stop", "producer_id", p.id, "error", err)
	}
	p.transport.removeProducer(p.id)
	p.transport.router.removeProducer(p.id)
	return nil
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
