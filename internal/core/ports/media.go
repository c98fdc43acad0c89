package ports

import (
	"context"

	"vcv/internal/core/domain"
)

// MediaEngine creates per-room routers. Implementations own the actual
// media plane (ICE, DTLS, RTP forwarding).
type MediaEngine interface {
	CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (Router, error)
	Close() error
}

type Router interface {
	ID() string
	RtpCapabilities() domain.RtpCapabilities
	// CanConsume reports whether an endpoint with caps can receive the
	// producer's stream.
	CanConsume(producerID domain.ProducerID, caps domain.RtpCapabilities) bool
	CreateWebRtcTransport(ctx context.Context, opts domain.TransportOptions) (Transport, error)
	Close() error
}

// Transport is one ICE/DTLS channel between a peer and the router.
// Closing it closes every producer and consumer created on it.
type Transport interface {
	ID() domain.TransportID
	IceParameters() domain.IceParameters
	IceCandidates() []domain.IceCandidate
	DtlsParameters() domain.DtlsParameters
	SetMaxIncomingBitrate(bps int) error
	Connect(ctx context.Context, params domain.ConnectParams) error
	Produce(ctx context.Context, kind domain.MediaKind, rtp domain.RtpParameters) (Producer, error)
	Consume(ctx context.Context, producerID domain.ProducerID, caps domain.RtpCapabilities, paused bool) (Consumer, error)
	Close() error
	Closed() bool
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Close() error
	Closed() bool
}

type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	Paused() bool
	Resume(ctx context.Context) error
	Close() error
	Closed() bool
}
