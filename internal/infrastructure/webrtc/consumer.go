package webrtc

import (
	"context"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// Consumer sends one producer's track to a subscribing client. A paused
// consumer has an unbound sender, so no media reaches it.
type Consumer struct {
	id        domain.ConsumerID
	producer  *Producer
	transport *Transport
	sender    *webrtc.RTPSender
	rtp       domain.RtpParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

var _ ports.Consumer = (*Consumer)(nil)

func (c *Consumer) ID() domain.ConsumerID               { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID       { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind              { return c.producer.kind }
func (c *Consumer) RtpParameters() domain.RtpParameters { return c.rtp }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Resume starts sending once the transport is connected. Resuming twice is a
// no-op.
func (c *Consumer) Resume(context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	c.paused = false
	c.mu.Unlock()

	c.transport.whenReady(c.start)
	return nil
}

func (c *Consumer) start() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.sender.Send(c.sender.GetParameters()); err != nil {
		c.transport.logger.Warnw("consumer send failed", "consumer_id", c.id, "error", err)
		return
	}
	go c.relayRTCP()
	c.producer.requestKeyFrame()
}

// relayRTCP forwards key frame requests from the subscriber to the producer.
func (c *Consumer) relayRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.producer.requestKeyFrame()
			}
		}
	}
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.sender.Stop(); err != nil {
		c.transport.logger.Debugw("sender stop", "consumer_id", c.id, "error", err)
	}
	c.producer.removeConsumer(c.id)
	c.transport.removeConsumer(c.id)
	return nil
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
