package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/core/domain"
)

func TestRoomDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewRoomDirectory()

	_, err := dir.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	require.NoError(t, dir.Upsert(ctx, domain.RoomInfo{ID: "r2", Peers: 1}))
	require.NoError(t, dir.Upsert(ctx, domain.RoomInfo{ID: "r1", Peers: 1}))
	require.NoError(t, dir.Upsert(ctx, domain.RoomInfo{ID: "r1", Peers: 3}))

	info, err := dir.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Peers)

	rooms, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomID("r1"), rooms[0].ID)

	require.NoError(t, dir.Remove(ctx, "r1"))
	require.NoError(t, dir.Remove(ctx, "missing"))
	rooms, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.NoError(t, dir.Close())
}
