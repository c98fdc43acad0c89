package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/services"
	apperrors "vcv/pkg/errors"
	rlog "vcv/pkg/logger"
	"vcv/pkg/tracing"
	"vcv/pkg/validation"
)

// TokenValidator checks join tokens. A nil validator disables auth.
type TokenValidator interface {
	ValidateJoinToken(token string) (*services.JoinClaims, error)
}

// Metrics observes handled requests. code is "ok" or an error code.
type Metrics interface {
	ObserveSignal(msgType, code string, d time.Duration)
}

type GatewayOption func(*Gateway)

func WithTokenValidator(v TokenValidator) GatewayOption {
	return func(g *Gateway) { g.auth = v }
}

func WithMetrics(m Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway maps signaling requests to room operations. It is independent of
// the wire transport: anything implementing Connection can drive it.
type Gateway struct {
	registry *services.RoomRegistry
	hub      *Hub
	auth     TokenValidator
	metrics  Metrics
	logger   *zap.SugaredLogger
	ctxLog   *rlog.ContextLogger

	mu    sync.Mutex
	rooms map[domain.PeerID]domain.RoomID
}

func NewGateway(registry *services.RoomRegistry, hub *Hub, logger *zap.SugaredLogger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry: registry,
		hub:      hub,
		logger:   logger,
		ctxLog:   rlog.NewContextLogger(logger.Desugar()),
		rooms:    make(map[domain.PeerID]domain.RoomID),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect makes c reachable for push events.
func (g *Gateway) Connect(c Connection) {
	g.hub.Register(c)
}

// Disconnect removes the connection's peer from its room and tells the
// remaining peers.
func (g *Gateway) Disconnect(c Connection) {
	g.leave(c.ID())
	g.hub.Unregister(c)
}

// RoomOf returns the room the connection has joined.
func (g *Gateway) RoomOf(peerID domain.PeerID) (domain.RoomID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.rooms[peerID]
	return id, ok
}

// HandleMessage runs one request and replies on c. Requests other than join,
// leave and unknown types are dropped without a reply until c has joined.
func (g *Gateway) HandleMessage(ctx context.Context, c Connection, msg SignalMessage) {
	start := time.Now()
	peerID := c.ID()

	ctx, span := tracing.TraceSignal(ctx, msg.Type, string(peerID))
	defer span.End()
	ctx = rlog.WithPeerID(ctx, string(peerID))
	if len(msg.ID) > 0 {
		ctx = rlog.WithRequestID(ctx, string(msg.ID))
	}

	payload, handled, err := g.dispatch(ctx, c, msg)
	if !handled {
		g.ctxLog.Sugar(ctx).Debugw("request before join dropped", "type", msg.Type)
		g.observe(msg.Type, "dropped", start)
		return
	}

	code := "ok"
	if err != nil {
		appErr := toAppError(err)
		code = string(appErr.Code)
		err = appErr
		tracing.RecordError(ctx, appErr)
		tracing.AddSpanAttributes(ctx, tracing.ErrorCodeKey.String(code))
		g.ctxLog.Sugar(ctx).Infow("signal request failed", "type", msg.Type, "code", code, "error", appErr)
	}
	g.observe(msg.Type, code, start)
	g.reply(c, msg.ID, payload, err)
}

func (g *Gateway) dispatch(ctx context.Context, c Connection, msg SignalMessage) (interface{}, bool, error) {
	peerID := c.ID()

	switch msg.Type {
	case TypeJoin:
		resp, err := g.handleJoin(ctx, peerID, msg.Payload)
		return resp, true, err
	case TypeLeave:
		g.leave(peerID)
		return nil, true, nil
	case TypeGetProducers, TypeCreateTransport, TypeTransportConnect, TypeTransportProduce,
		TypeConsume, TypeConsumerResume, TypeAdminMuteAll:
	default:
		return nil, true, apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	room, ok := g.joinedRoom(peerID)
	if !ok {
		return nil, false, nil
	}
	tracing.AddSpanAttributes(ctx, tracing.RoomIDKey.String(string(room.ID())))
	ctx = rlog.WithRoomID(ctx, string(room.ID()))

	var (
		resp interface{}
		err  error
	)
	switch msg.Type {
	case TypeGetProducers:
		resp = room.ListOtherProducers(peerID)
	case TypeCreateTransport:
		resp, err = g.handleCreateTransport(ctx, room, peerID, msg.Payload)
	case TypeTransportConnect:
		err = g.handleTransportConnect(ctx, room, peerID, msg.Payload)
	case TypeTransportProduce:
		resp, err = g.handleProduce(ctx, room, peerID, msg.Payload)
	case TypeConsume:
		resp, err = g.handleConsume(ctx, room, peerID, msg.Payload)
	case TypeConsumerResume:
		err = g.handleConsumerResume(ctx, room, peerID, msg.Payload)
	case TypeAdminMuteAll:
		room.Broadcast(peerID, domain.EventForceMute, domain.ForceMuteEvent{By: peerID})
		g.ctxLog.Sugar(ctx).Infow("mute all requested")
	}
	return resp, true, err
}

func (g *Gateway) handleJoin(ctx context.Context, peerID domain.PeerID, raw json.RawMessage) (interface{}, error) {
	var req JoinRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if current, joined := g.RoomOf(peerID); joined {
		return nil, apperrors.NewConflictError("already joined a room").WithContext("room_id", current)
	}

	if err := validation.ValidateRoomID(req.RoomID); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	name, roleName := req.Name, req.Role
	if g.auth != nil {
		claims, err := g.auth.ValidateJoinToken(req.Token)
		if err != nil {
			return nil, apperrors.NewUnauthorizedError(err.Error())
		}
		if claims.RoomID != domain.RoomID(req.RoomID) {
			return nil, apperrors.NewUnauthorizedError("token is not valid for this room")
		}
		name, roleName = claims.Name, string(claims.Role)
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	role, ok := domain.ParseRole(roleName)
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid role %q", roleName))
	}

	roomID := domain.RoomID(req.RoomID)
	peer := services.NewPeerSession(domain.PeerInfo{ID: peerID, Name: name, Role: role})
	_, caps, err := g.registry.Join(ctx, roomID, peer)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.rooms[peerID] = roomID
	g.mu.Unlock()

	return JoinResponse{PeerID: peerID, RtpCapabilities: caps}, nil
}

func (g *Gateway) handleCreateTransport(ctx context.Context, room *services.Room, peerID domain.PeerID, raw json.RawMessage) (interface{}, error) {
	var req CreateTransportRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := validation.ValidateDirection(req.Direction); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	params, err := room.CreateTransport(ctx, peerID)
	if err != nil {
		return nil, err
	}
	return params, nil
}

func (g *Gateway) handleTransportConnect(ctx context.Context, room *services.Room, peerID domain.PeerID, raw json.RawMessage) error {
	var req TransportConnectRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	if err := validation.ValidateResourceID(string(req.TransportID), "transportId"); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return room.ConnectTransport(ctx, peerID, req.TransportID, domain.ConnectParams{
		DtlsParameters: req.DtlsParameters,
		IceParameters:  req.IceParameters,
		IceCandidates:  req.IceCandidates,
	})
}

func (g *Gateway) handleProduce(ctx context.Context, room *services.Room, peerID domain.PeerID, raw json.RawMessage) (interface{}, error) {
	var req TransportProduceRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := validation.ValidateResourceID(string(req.TransportID), "transportId"); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateMediaKind(req.Kind); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	id, err := room.Produce(ctx, peerID, req.TransportID, domain.MediaKind(req.Kind), req.RtpParameters)
	if err != nil {
		return nil, err
	}
	return TransportProduceResponse{ID: id}, nil
}

// handleConsume answers a capability mismatch with an empty success: the
// client just cannot play that stream.
func (g *Gateway) handleConsume(ctx context.Context, room *services.Room, peerID domain.PeerID, raw json.RawMessage) (interface{}, error) {
	var req ConsumeRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	if err := validation.ValidateResourceID(string(req.TransportID), "transportId"); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateResourceID(string(req.ProducerID), "producerId"); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	params, err := room.Consume(ctx, peerID, req.TransportID, req.ProducerID, req.RtpCapabilities)
	if errors.Is(err, domain.ErrCannotConsume) {
		g.ctxLog.Sugar(ctx).Debugw("consume refused", "producer_id", req.ProducerID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return params, nil
}

func (g *Gateway) handleConsumerResume(ctx context.Context, room *services.Room, peerID domain.PeerID, raw json.RawMessage) error {
	var req ConsumerResumeRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	return room.ResumeConsumer(ctx, peerID, req.ConsumerID)
}

// leave detaches the peer from its room, then announces the departure to
// whoever is left.
func (g *Gateway) leave(peerID domain.PeerID) {
	g.mu.Lock()
	roomID, ok := g.rooms[peerID]
	delete(g.rooms, peerID)
	g.mu.Unlock()
	if !ok {
		return
	}

	room, ok := g.registry.Get(roomID)
	if !ok {
		return
	}
	room.Leave(peerID)
	room.Broadcast(peerID, domain.EventPeerClosed, domain.PeerClosedEvent{PeerID: peerID})
}

func (g *Gateway) joinedRoom(peerID domain.PeerID) (*services.Room, bool) {
	roomID, ok := g.RoomOf(peerID)
	if !ok {
		return nil, false
	}
	return g.registry.Get(roomID)
}

func (g *Gateway) reply(c Connection, id json.RawMessage, payload interface{}, err error) {
	if len(id) == 0 {
		return
	}
	resp := Response{Type: TypeResponse, ID: id, OK: err == nil, Payload: payload}
	if err != nil {
		appErr := toAppError(err)
		resp.Payload = nil
		resp.Error = &ErrorBody{Code: string(appErr.Code), Message: appErr.Message}
	}
	if !c.Send(resp) {
		g.logger.Debugw("reply not delivered", "peer_id", c.ID())
	}
}

func (g *Gateway) observe(msgType, code string, start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveSignal(msgType, code, time.Since(start))
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.NewInvalidInputError("malformed payload").WithContext("error", err.Error())
	}
	return nil
}

// toAppError maps domain errors onto the signaling error taxonomy.
func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrPeerAlreadyJoined):
		return apperrors.NewConflictError("peer already joined this room")
	case errors.Is(err, domain.ErrPeerNotFound), errors.Is(err, domain.ErrPeerClosed):
		return apperrors.NewNotFoundError("peer")
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomClosed):
		return apperrors.NewNotFoundError("room")
	case errors.Is(err, domain.ErrTransportNotFound):
		return apperrors.NewNotFoundError("transport")
	case errors.Is(err, domain.ErrProducerNotFound):
		return apperrors.NewNotFoundError("producer")
	case errors.Is(err, domain.ErrConsumerNotFound):
		return apperrors.NewNotFoundError("consumer")
	case errors.Is(err, domain.ErrCannotConsume):
		return apperrors.NewUnsupportedError(err.Error())
	case errors.Is(err, domain.ErrUnsupportedKind):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "request cancelled", 503)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal error", 500)
	}
}
