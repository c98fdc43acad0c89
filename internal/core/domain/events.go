package domain

// Server to client push events.
const (
	EventNewProducer = "newProducer"
	EventPeerClosed  = "peerClosed"
	EventForceMute   = "forceMute"
)

type NewProducerEvent struct {
	ProducerID ProducerID `json:"producerId"`
	PeerID     PeerID     `json:"peerId"`
}

type PeerClosedEvent struct {
	PeerID PeerID `json:"peerId"`
}

type ForceMuteEvent struct {
	By PeerID `json:"by,omitempty"`
}
