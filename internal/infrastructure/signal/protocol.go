package signal

import (
	"encoding/json"

	"vcv/internal/core/domain"
)

// Inbound request types.
const (
	TypeJoin             = "join"
	TypeLeave            = "leave"
	TypeGetProducers     = "getProducers"
	TypeCreateTransport  = "createTransport"
	TypeTransportConnect = "transportConnect"
	TypeTransportProduce = "transportProduce"
	TypeConsume          = "consume"
	TypeConsumerResume   = "consumerResume"
	TypeAdminMuteAll     = "adminMuteAll"
)

// TypeResponse tags replies to requests.
const TypeResponse = "response"

// SignalMessage is one client request. ID is echoed in the response so the
// client can match its callback; requests without an ID get no reply.
type SignalMessage struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Response struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	OK      bool            `json:"ok"`
	Payload interface{}     `json:"payload"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Push is a server initiated event.
type Push struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type JoinRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Token  string `json:"token,omitempty"`
}

type JoinResponse struct {
	PeerID          domain.PeerID          `json:"peerId"`
	RtpCapabilities domain.RtpCapabilities `json:"rtpCapabilities"`
}

type CreateTransportRequest struct {
	Direction string `json:"direction,omitempty"`
}

type TransportConnectRequest struct {
	TransportID    domain.TransportID    `json:"transportId"`
	DtlsParameters domain.DtlsParameters `json:"dtlsParameters"`
	IceParameters  *domain.IceParameters `json:"iceParameters,omitempty"`
	IceCandidates  []domain.IceCandidate `json:"iceCandidates,omitempty"`
}

type TransportProduceRequest struct {
	TransportID   domain.TransportID   `json:"transportId"`
	Kind          string               `json:"kind"`
	RtpParameters domain.RtpParameters `json:"rtpParameters"`
}

type TransportProduceResponse struct {
	ID domain.ProducerID `json:"id"`
}

type ConsumeRequest struct {
	TransportID     domain.TransportID     `json:"transportId"`
	ProducerID      domain.ProducerID      `json:"producerId"`
	RtpCapabilities domain.RtpCapabilities `json:"rtpCapabilities"`
}

type ConsumerResumeRequest struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}
