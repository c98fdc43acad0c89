package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/core/domain"
	"vcv/internal/testutils"
)

func newTestTransport(t *testing.T) *testutils.Transport {
	t.Helper()
	router, err := testutils.NewMediaEngine().CreateRouter(context.Background(), testutils.OpusCodecs())
	require.NoError(t, err)
	tr, err := router.CreateWebRtcTransport(context.Background(), domain.TransportOptions{})
	require.NoError(t, err)
	return tr.(*testutils.Transport)
}

func TestPeerSession_Bookkeeping(t *testing.T) {
	peer := NewPeerSession(domain.PeerInfo{ID: "a", Name: "Alice", Role: domain.RolePresenter})
	tr := newTestTransport(t)
	ctx := context.Background()

	require.True(t, peer.AddTransport(tr))
	got, ok := peer.Transport(tr.ID())
	require.True(t, ok)
	assert.Same(t, tr, got)

	producer, err := tr.Produce(ctx, domain.MediaKindAudio, testutils.OpusRtpParameters(1))
	require.NoError(t, err)
	require.True(t, peer.AddProducer(producer))

	consumer, err := tr.Consume(ctx, producer.ID(), testutils.FullCapabilities(), true)
	require.NoError(t, err)
	require.True(t, peer.AddConsumer(consumer))

	transports, producers, consumers := peer.Counts()
	assert.Equal(t, 1, transports)
	assert.Equal(t, 1, producers)
	assert.Equal(t, 1, consumers)
	assert.Equal(t, []domain.ProducerID{producer.ID()}, peer.ProducerIDs())
	assert.Equal(t, "Alice", peer.Name())
	assert.Equal(t, domain.RolePresenter, peer.Role())
}

func TestPeerSession_CloseCascadesAndRejectsAdds(t *testing.T) {
	peer := NewPeerSession(domain.PeerInfo{ID: "a"})
	tr := newTestTransport(t)
	ctx := context.Background()
	require.True(t, peer.AddTransport(tr))
	producer, err := tr.Produce(ctx, domain.MediaKindAudio, testutils.OpusRtpParameters(1))
	require.NoError(t, err)
	require.True(t, peer.AddProducer(producer))

	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())

	assert.True(t, tr.Closed())
	assert.True(t, producer.Closed())
	_, ok := peer.Producer(producer.ID())
	assert.False(t, ok)

	late := newTestTransport(t)
	assert.False(t, peer.AddTransport(late))
	assert.False(t, late.Closed(), "a rejected resource is left to the caller")
}

func TestPeerSession_DetachConsumersOf(t *testing.T) {
	peer := NewPeerSession(domain.PeerInfo{ID: "b"})
	tr := newTestTransport(t)
	ctx := context.Background()

	p1, _ := tr.Produce(ctx, domain.MediaKindAudio, testutils.OpusRtpParameters(1))
	p2, _ := tr.Produce(ctx, domain.MediaKindAudio, testutils.OpusRtpParameters(2))
	c1, _ := tr.Consume(ctx, p1.ID(), testutils.FullCapabilities(), true)
	c2, _ := tr.Consume(ctx, p2.ID(), testutils.FullCapabilities(), true)
	peer.AddConsumer(c1)
	peer.AddConsumer(c2)

	detached := peer.DetachConsumersOf(map[domain.ProducerID]struct{}{p1.ID(): {}})

	require.Len(t, detached, 1)
	assert.Equal(t, c1.ID(), detached[0].ID())
	_, ok := peer.Consumer(c1.ID())
	assert.False(t, ok)
	_, ok = peer.Consumer(c2.ID())
	assert.True(t, ok)
	assert.Nil(t, peer.DetachConsumersOf(nil))
}
