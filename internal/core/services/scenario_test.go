package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/core/domain"
	"vcv/internal/testutils"
)

// A publishes, B discovers and subscribes, then both leave.
func TestScenario_PublishDiscoverSubscribeLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, _ := f.join(t, "r1", "A")
	_, producerID := f.produceAudio(t, room, "A")

	roomB, bPeer := f.join(t, "r1", "B")
	require.Same(t, room, roomB)
	assert.Equal(t, []domain.ProducerID{producerID}, room.ListOtherProducers("B"))

	recv, err := room.CreateTransport(ctx, "B")
	require.NoError(t, err)
	require.NoError(t, room.ConnectTransport(ctx, "B", recv.ID, domain.ConnectParams{}))
	consumerParams, err := room.Consume(ctx, "B", recv.ID, producerID, testutils.FullCapabilities())
	require.NoError(t, err)
	require.NoError(t, room.ResumeConsumer(ctx, "B", consumerParams.ID))
	consumer, _ := bPeer.Consumer(consumerParams.ID)
	assert.False(t, consumer.Paused())

	// the gateway's disconnect path
	room.Leave("A")
	room.Broadcast("A", domain.EventPeerClosed, domain.PeerClosedEvent{PeerID: "A"})

	closed := f.notifier.For("B", domain.EventPeerClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.PeerClosedEvent{PeerID: "A"}, closed[0].Payload)
	_, ok := f.registry.Get("r1")
	assert.True(t, ok)

	room.Leave("B")
	_, ok = f.registry.Get("r1")
	assert.False(t, ok)
}
