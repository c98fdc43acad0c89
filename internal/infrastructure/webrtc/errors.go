package webrtc

import "errors"

var (
	ErrEngineClosed         = errors.New("media engine closed")
	ErrRouterClosed         = errors.New("router closed")
	ErrTransportClosed      = errors.New("transport closed")
	ErrAlreadyConnected     = errors.New("transport already connected")
	ErrMissingIceParameters = errors.New("remote ICE parameters required")
	ErrNoCodecs             = errors.New("no codecs given")
	ErrNoEncodings          = errors.New("no encodings given")
	ErrUnsupportedCodec     = errors.New("codec not supported by router")
	ErrProducerNotFound     = errors.New("producer not found")
	ErrProducerClosed       = errors.New("producer closed")
	ErrConsumerClosed       = errors.New("consumer closed")
)
