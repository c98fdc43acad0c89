package signal

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/services"
	"vcv/internal/testutils"
	apperrors "vcv/pkg/errors"
)

type fakeConn struct {
	id domain.PeerID

	mu   sync.Mutex
	sent []interface{}
}

func newFakeConn(id domain.PeerID) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() domain.PeerID { return c.id }

func (c *fakeConn) Send(v interface{}) bool {
	c.mu.Lock()
	c.sent = append(c.sent, v)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) responses() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Response
	for _, v := range c.sent {
		if r, ok := v.(Response); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeConn) lastResponse(t *testing.T) Response {
	t.Helper()
	rs := c.responses()
	require.NotEmpty(t, rs)
	return rs[len(rs)-1]
}

func (c *fakeConn) pushes(event string) []Push {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Push
	for _, v := range c.sent {
		if p, ok := v.(Push); ok && p.Type == event {
			out = append(out, p)
		}
	}
	return out
}

type recordingMetrics struct {
	mu    sync.Mutex
	codes map[string][]string
}

func (m *recordingMetrics) ObserveSignal(msgType, code string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string][]string)
	}
	m.codes[msgType] = append(m.codes[msgType], code)
}

type gatewayFixture struct {
	engine   *testutils.MediaEngine
	registry *services.RoomRegistry
	hub      *Hub
	gateway  *Gateway
	metrics  *recordingMetrics
	seq      int
}

func newGatewayFixture(t *testing.T, opts ...GatewayOption) *gatewayFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	f := &gatewayFixture{
		engine:  testutils.NewMediaEngine(),
		hub:     NewHub(logger),
		metrics: &recordingMetrics{},
	}
	f.registry = services.NewRoomRegistry(f.engine, services.RegistryConfig{
		Codecs: testutils.OpusCodecs(),
		Room: services.RoomOptions{
			Transport:          domain.TransportOptions{ListenIP: "0.0.0.0", AnnouncedIP: "127.0.0.1", EnableUDP: true},
			MaxIncomingBitrate: 1_500_000,
			InstanceID:         "test",
		},
	}, f.hub, nil, logger)
	opts = append([]GatewayOption{WithMetrics(f.metrics)}, opts...)
	f.gateway = NewGateway(f.registry, f.hub, logger, opts...)
	return f
}

func (f *gatewayFixture) connect(id domain.PeerID) *fakeConn {
	c := newFakeConn(id)
	f.gateway.Connect(c)
	return c
}

func (f *gatewayFixture) request(t *testing.T, c *fakeConn, msgType string, payload interface{}) Response {
	t.Helper()
	f.seq++
	id := json.RawMessage(strconv.Itoa(f.seq))
	msg := SignalMessage{ID: id, Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = raw
	}
	f.gateway.HandleMessage(context.Background(), c, msg)
	resp := c.lastResponse(t)
	require.Equal(t, string(id), string(resp.ID))
	return resp
}

func (f *gatewayFixture) join(t *testing.T, c *fakeConn, roomID string) JoinResponse {
	t.Helper()
	resp := f.request(t, c, TypeJoin, JoinRequest{RoomID: roomID, Name: string(c.id)})
	require.True(t, resp.OK, "join failed: %+v", resp.Error)
	return resp.Payload.(JoinResponse)
}

func (f *gatewayFixture) createTransport(t *testing.T, c *fakeConn) domain.TransportID {
	t.Helper()
	resp := f.request(t, c, TypeCreateTransport, CreateTransportRequest{Direction: "send"})
	require.True(t, resp.OK)
	return resp.Payload.(domain.TransportParams).ID
}

func (f *gatewayFixture) produce(t *testing.T, c *fakeConn, transportID domain.TransportID, kind string, rtp domain.RtpParameters) domain.ProducerID {
	t.Helper()
	resp := f.request(t, c, TypeTransportProduce, TransportProduceRequest{TransportID: transportID, Kind: kind, RtpParameters: rtp})
	require.True(t, resp.OK, "produce failed: %+v", resp.Error)
	return resp.Payload.(TransportProduceResponse).ID
}

func TestGateway_Join(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")

	joined := f.join(t, a, "r1")
	assert.Equal(t, domain.PeerID("A"), joined.PeerID)
	assert.NotEmpty(t, joined.RtpCapabilities.Codecs)

	roomID, ok := f.gateway.RoomOf("A")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), roomID)

	resp := f.request(t, a, TypeJoin, JoinRequest{RoomID: "r2"})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperrors.ErrCodeConflict), resp.Error.Code)
	assert.Equal(t, 1, f.registry.Len())
}

func TestGateway_JoinValidation(t *testing.T) {
	tests := []struct {
		name string
		req  JoinRequest
	}{
		{name: "empty room id", req: JoinRequest{RoomID: ""}},
		{name: "bad room id", req: JoinRequest{RoomID: "room with spaces"}},
		{name: "bad role", req: JoinRequest{RoomID: "r1", Role: "owner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t)
			resp := f.request(t, f.connect("A"), TypeJoin, tt.req)
			assert.False(t, resp.OK)
			assert.Equal(t, string(apperrors.ErrCodeInvalidInput), resp.Error.Code)
			assert.Equal(t, 0, f.registry.Len())
		})
	}
}

func TestGateway_DropsRequestsBeforeJoin(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")

	f.gateway.HandleMessage(context.Background(), a, SignalMessage{ID: json.RawMessage(`1`), Type: TypeGetProducers})
	f.gateway.HandleMessage(context.Background(), a, SignalMessage{ID: json.RawMessage(`2`), Type: TypeCreateTransport})

	assert.Empty(t, a.responses())
	assert.Equal(t, []string{"dropped"}, f.metrics.codes[TypeGetProducers])
	assert.Zero(t, f.engine.RoutersCreated())
}

func TestGateway_UnknownType(t *testing.T) {
	f := newGatewayFixture(t)
	resp := f.request(t, f.connect("A"), "renegotiate", nil)
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), resp.Error.Code)
}

func TestGateway_MalformedPayload(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")
	f.join(t, a, "r1")

	f.gateway.HandleMessage(context.Background(), a, SignalMessage{
		ID:      json.RawMessage(`"x"`),
		Type:    TypeTransportProduce,
		Payload: json.RawMessage(`{"transportId": 5}`),
	})
	resp := a.lastResponse(t)
	assert.Equal(t, `"x"`, string(resp.ID))
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), resp.Error.Code)
}

func TestGateway_NoReplyWithoutID(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")
	f.join(t, a, "r1")
	before := len(a.responses())

	f.gateway.HandleMessage(context.Background(), a, SignalMessage{Type: TypeGetProducers})
	assert.Len(t, a.responses(), before)
}

func TestGateway_PublishSubscribe(t *testing.T) {
	f := newGatewayFixture(t)
	a, b := f.connect("A"), f.connect("B")

	f.join(t, a, "r1")
	f.join(t, b, "r1")

	sendID := f.createTransport(t, a)
	resp := f.request(t, a, TypeTransportConnect, TransportConnectRequest{TransportID: sendID})
	assert.True(t, resp.OK)
	producerID := f.produce(t, a, sendID, "audio", testutils.OpusRtpParameters(1111))

	pushes := b.pushes(domain.EventNewProducer)
	require.Len(t, pushes, 1)
	assert.Equal(t, domain.NewProducerEvent{ProducerID: producerID, PeerID: "A"}, pushes[0].Payload)
	assert.Empty(t, a.pushes(domain.EventNewProducer))

	resp = f.request(t, b, TypeGetProducers, nil)
	require.True(t, resp.OK)
	assert.Equal(t, []domain.ProducerID{producerID}, resp.Payload)

	recvID := f.createTransport(t, b)
	resp = f.request(t, b, TypeConsume, ConsumeRequest{
		TransportID:     recvID,
		ProducerID:      producerID,
		RtpCapabilities: testutils.FullCapabilities(),
	})
	require.True(t, resp.OK)
	consumer := resp.Payload.(*domain.ConsumerParams)
	assert.Equal(t, producerID, consumer.ProducerID)
	assert.Equal(t, domain.MediaKindAudio, consumer.Kind)

	resp = f.request(t, b, TypeConsumerResume, ConsumerResumeRequest{ConsumerID: consumer.ID})
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"ok"}, f.metrics.codes[TypeConsumerResume])
}

func TestGateway_ConsumeRefusalIsEmptySuccess(t *testing.T) {
	f := newGatewayFixture(t)
	a, b := f.connect("A"), f.connect("B")
	f.join(t, a, "r1")
	f.join(t, b, "r1")

	producerID := f.produce(t, a, f.createTransport(t, a), "video", testutils.VP8RtpParameters(2222))
	recvID := f.createTransport(t, b)

	resp := f.request(t, b, TypeConsume, ConsumeRequest{
		TransportID:     recvID,
		ProducerID:      producerID,
		RtpCapabilities: testutils.AudioOnlyCapabilities(),
	})
	assert.True(t, resp.OK)
	assert.Nil(t, resp.Payload)
	assert.Nil(t, resp.Error)
}

func TestGateway_ErrorCodes(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")
	f.join(t, a, "r1")
	recvID := f.createTransport(t, a)

	resp := f.request(t, a, TypeTransportProduce, TransportProduceRequest{
		TransportID: "missing", Kind: "audio", RtpParameters: testutils.OpusRtpParameters(1),
	})
	assert.Equal(t, string(apperrors.ErrCodeNotFound), resp.Error.Code)

	resp = f.request(t, a, TypeTransportProduce, TransportProduceRequest{
		TransportID: recvID, Kind: "screen", RtpParameters: testutils.OpusRtpParameters(1),
	})
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), resp.Error.Code)

	resp = f.request(t, a, TypeConsume, ConsumeRequest{
		TransportID: recvID, ProducerID: "missing", RtpCapabilities: testutils.FullCapabilities(),
	})
	assert.Equal(t, string(apperrors.ErrCodeNotFound), resp.Error.Code)

	resp = f.request(t, a, TypeTransportConnect, TransportConnectRequest{TransportID: "missing"})
	assert.True(t, resp.OK)
}

func TestGateway_EngineFailure(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")
	f.join(t, a, "r1")
	sendID := f.createTransport(t, a)

	f.engine.Routers()[0].Transports()[0].ProduceErr = assert.AnError
	resp := f.request(t, a, TypeTransportProduce, TransportProduceRequest{
		TransportID: sendID, Kind: "audio", RtpParameters: testutils.OpusRtpParameters(1),
	})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperrors.ErrCodeEngineFailure), resp.Error.Code)
}

func TestGateway_AdminMuteAll(t *testing.T) {
	f := newGatewayFixture(t)
	a, b, c := f.connect("A"), f.connect("B"), f.connect("C")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	f.join(t, c, "r1")

	resp := f.request(t, a, TypeAdminMuteAll, nil)
	assert.True(t, resp.OK)

	assert.Empty(t, a.pushes(domain.EventForceMute))
	for _, other := range []*fakeConn{b, c} {
		pushes := other.pushes(domain.EventForceMute)
		require.Len(t, pushes, 1)
		assert.Equal(t, domain.ForceMuteEvent{By: "A"}, pushes[0].Payload)
	}
}

func TestGateway_Disconnect(t *testing.T) {
	f := newGatewayFixture(t)
	a, b := f.connect("A"), f.connect("B")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	producerID := f.produce(t, a, f.createTransport(t, a), "audio", testutils.OpusRtpParameters(1111))
	recvID := f.createTransport(t, b)
	f.request(t, b, TypeConsume, ConsumeRequest{TransportID: recvID, ProducerID: producerID, RtpCapabilities: testutils.FullCapabilities()})

	f.gateway.Disconnect(a)

	pushes := b.pushes(domain.EventPeerClosed)
	require.Len(t, pushes, 1)
	assert.Equal(t, domain.PeerClosedEvent{PeerID: "A"}, pushes[0].Payload)
	_, joined := f.gateway.RoomOf("A")
	assert.False(t, joined)
	assert.Equal(t, 1, f.hub.Len())

	resp := f.request(t, b, TypeGetProducers, nil)
	assert.Empty(t, resp.Payload)

	f.gateway.Disconnect(b)
	assert.Equal(t, 0, f.registry.Len())
	assert.True(t, f.engine.Routers()[0].Closed())

	// a second disconnect is a no-op
	f.gateway.Disconnect(b)
}

func TestGateway_LeaveThenRejoin(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.connect("A")
	f.join(t, a, "r1")

	resp := f.request(t, a, TypeLeave, nil)
	assert.True(t, resp.OK)
	assert.Equal(t, 0, f.registry.Len())

	f.join(t, a, "r2")
	roomID, _ := f.gateway.RoomOf("A")
	assert.Equal(t, domain.RoomID("r2"), roomID)
}

func TestGateway_TokenAuth(t *testing.T) {
	auth := services.NewAuthService("secret", "vcv", time.Hour)
	f := newGatewayFixture(t, WithTokenValidator(auth))

	token, _, err := auth.IssueJoinToken("r1", "Alice", domain.RolePresenter)
	require.NoError(t, err)

	resp := f.request(t, f.connect("X"), TypeJoin, JoinRequest{RoomID: "r1"})
	assert.Equal(t, string(apperrors.ErrCodeUnauthorized), resp.Error.Code)

	resp = f.request(t, f.connect("Y"), TypeJoin, JoinRequest{RoomID: "r2", Token: token})
	assert.Equal(t, string(apperrors.ErrCodeUnauthorized), resp.Error.Code)

	resp = f.request(t, f.connect("A"), TypeJoin, JoinRequest{RoomID: "r1", Name: "Mallory", Token: token})
	require.True(t, resp.OK)

	room, ok := f.registry.Get("r1")
	require.True(t, ok)
	peer, ok := room.Peer("A")
	require.True(t, ok)
	assert.Equal(t, "Alice", peer.Name())
	assert.Equal(t, domain.RolePresenter, peer.Role())
}
