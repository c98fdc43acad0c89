package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/infrastructure/repositories/memory"
	"vcv/internal/testutils"
)

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(context.Context) (bool, error) { return true, nil }, 0, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("down", func(context.Context) (bool, error) { return false, errors.New("connection refused") }, 0, time.Second)
	h.AddCheck("false", func(context.Context) (bool, error) { return false, nil }, 0, time.Second)

	status := h.CheckAll(context.Background())
	assert.False(t, status.Healthy())
	assert.Equal(t, map[string]string{
		"ok":    "healthy",
		"down":  "connection refused",
		"false": "check failed",
	}, status.Checks)
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}, 0, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}

func TestHealthChecker_MediaAndDirectory(t *testing.T) {
	engine := testutils.NewMediaEngine()
	h := NewHealthChecker()
	h.AddMediaCheck(engine, testutils.OpusCodecs(), 0, time.Second)
	h.AddDirectoryCheck(memory.NewRoomDirectory(), 0, time.Second)

	assert.True(t, h.IsReady(context.Background()))
	require.Len(t, engine.Routers(), 1)
	assert.True(t, engine.Routers()[0].Closed())

	engine.CreateRouterHook = func(context.Context) error { return errors.New("no ports") }
	status := h.CheckAll(context.Background())
	assert.Equal(t, "no ports", status.Checks["media"])
}

func TestHealthChecker_Background(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("tick", func(context.Context) (bool, error) { return true, nil }, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var results int
	h.StartBackgroundChecks(ctx, func(name string, healthy bool, err error) {
		mu.Lock()
		results++
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return results >= 2
	}, time.Second, 5*time.Millisecond)
}
