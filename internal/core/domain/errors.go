package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomClosed        = errors.New("room closed")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerAlreadyJoined = errors.New("peer already joined")
	ErrPeerClosed        = errors.New("peer closed")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrCannotConsume     = errors.New("rtp capabilities cannot consume producer")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrUnsupportedKind   = errors.New("unsupported media kind")
)
