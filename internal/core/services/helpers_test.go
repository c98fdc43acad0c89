package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/testutils"
)

type fixture struct {
	engine   *testutils.MediaEngine
	notifier *testutils.Notifier
	registry *RoomRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:   testutils.NewMediaEngine(),
		notifier: &testutils.Notifier{},
	}
	f.registry = NewRoomRegistry(f.engine, RegistryConfig{
		Codecs: testutils.OpusCodecs(),
		Room: RoomOptions{
			Transport:          domain.TransportOptions{ListenIP: "0.0.0.0", AnnouncedIP: "127.0.0.1", EnableUDP: true},
			MaxIncomingBitrate: 1_500_000,
			InstanceID:         "test",
		},
	}, f.notifier, nil, zap.NewNop().Sugar())
	return f
}

func (f *fixture) join(t *testing.T, roomID domain.RoomID, peerID domain.PeerID) (*Room, *PeerSession) {
	t.Helper()
	peer := NewPeerSession(domain.PeerInfo{ID: peerID, Name: string(peerID)})
	room, _, err := f.registry.Join(context.Background(), roomID, peer)
	require.NoError(t, err)
	return room, peer
}

func (f *fixture) produceAudio(t *testing.T, room *Room, peerID domain.PeerID) (domain.TransportID, domain.ProducerID) {
	t.Helper()
	ctx := context.Background()
	params, err := room.CreateTransport(ctx, peerID)
	require.NoError(t, err)
	producerID, err := room.Produce(ctx, peerID, params.ID, domain.MediaKindAudio, testutils.OpusRtpParameters(1111))
	require.NoError(t, err)
	return params.ID, producerID
}
