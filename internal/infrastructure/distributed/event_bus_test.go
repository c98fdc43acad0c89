package distributed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
)

func TestEventBus_QueueDropsWhenFull(t *testing.T) {
	eb := NewEventBus(nil, "vcv:", "sfu-1", 2, zap.NewNop().Sugar())

	eb.RoomCreated(domain.RoomInfo{ID: "r1"})
	eb.RoomUpdated(domain.RoomInfo{ID: "r1", Peers: 2})
	eb.RoomClosed("r1")

	assert.EqualValues(t, 1, eb.Dropped())
	first := <-eb.queue
	assert.Equal(t, EventRoomCreated, first.Type)
	assert.Equal(t, "sfu-1", first.InstanceID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestEventBus_DecodeSkipsOwnAndMalformed(t *testing.T) {
	eb := NewEventBus(nil, "vcv:", "sfu-1", 1, zap.NewNop().Sugar())

	encode := func(e Event) string {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		return string(data)
	}

	_, ok := eb.decode(encode(Event{Type: EventRoomClosed, InstanceID: "sfu-1", RoomID: "r1"}))
	assert.False(t, ok)
	_, ok = eb.decode("{not json")
	assert.False(t, ok)
	_, ok = eb.decode(encode(Event{Type: EventRoomClosed, InstanceID: "sfu-2"}))
	assert.False(t, ok)

	event, ok := eb.decode(encode(Event{Type: EventRoomClosed, InstanceID: "sfu-2", RoomID: "r1"}))
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), event.RoomID)
}

// Runs against a real server when VCV_TEST_REDIS holds its address.
func TestEventBus_Redis(t *testing.T) {
	addr := os.Getenv("VCV_TEST_REDIS")
	if addr == "" {
		t.Skip("VCV_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "vcvtest:" + uuid.NewString() + ":"
	local := NewEventBus(client, prefix, "sfu-1", 8, zap.NewNop().Sugar())
	remote := NewEventBus(client, prefix, "sfu-2", 8, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Event, 4)
	go remote.Subscribe(ctx, func(e *Event) { received <- e })
	go local.Run(ctx)

	// Give the subscription time to register before publishing.
	time.Sleep(200 * time.Millisecond)
	local.RoomCreated(domain.RoomInfo{ID: "r1", Peers: 1})

	select {
	case e := <-received:
		assert.Equal(t, EventRoomCreated, e.Type)
		assert.Equal(t, domain.RoomID("r1"), e.RoomID)
		require.NotNil(t, e.Room)
		assert.Equal(t, 1, e.Room.Peers)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
