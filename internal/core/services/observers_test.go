package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

type MockRoomDirectory struct {
	mock.Mock
}

func (m *MockRoomDirectory) Upsert(ctx context.Context, info domain.RoomInfo) error {
	return m.Called(ctx, info).Error(0)
}

func (m *MockRoomDirectory) Remove(ctx context.Context, id domain.RoomID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRoomDirectory) Get(ctx context.Context, id domain.RoomID) (*domain.RoomInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RoomInfo), args.Error(1)
}

func (m *MockRoomDirectory) List(ctx context.Context) ([]domain.RoomInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.RoomInfo), args.Error(1)
}

func (m *MockRoomDirectory) Close() error {
	return m.Called().Error(0)
}

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) RoomCreated(info domain.RoomInfo) { o.calls = append(o.calls, "created:"+string(info.ID)) }
func (o *recordingObserver) RoomUpdated(info domain.RoomInfo) { o.calls = append(o.calls, "updated:"+string(info.ID)) }
func (o *recordingObserver) RoomClosed(id domain.RoomID)      { o.calls = append(o.calls, "closed:"+string(id)) }

func TestDirectorySync_MirrorsLifecycle(t *testing.T) {
	dir := new(MockRoomDirectory)
	dir.On("Upsert", mock.Anything, mock.MatchedBy(func(info domain.RoomInfo) bool { return info.ID == "r1" })).Return(nil)
	dir.On("Remove", mock.Anything, domain.RoomID("r1")).Return(nil)

	f := newFixture(t)
	f.registry.observer = NewDirectorySync(dir, zap.NewNop().Sugar())

	room, _ := f.join(t, "r1", "a")
	room.Leave("a")

	dir.AssertCalled(t, "Upsert", mock.Anything, mock.Anything)
	dir.AssertCalled(t, "Remove", mock.Anything, domain.RoomID("r1"))
}

func TestDirectorySync_ErrorsAreSwallowed(t *testing.T) {
	dir := new(MockRoomDirectory)
	dir.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	dir.On("Remove", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	sync := NewDirectorySync(dir, zap.NewNop().Sugar())
	assert.NotPanics(t, func() {
		sync.RoomCreated(domain.RoomInfo{ID: "r1"})
		sync.RoomClosed("r1")
	})
	dir.AssertExpectations(t)
}

func TestDirectorySync_RefreshKeepsIdleRoomsAlive(t *testing.T) {
	var upserts atomic.Int32
	dir := new(MockRoomDirectory)
	dir.On("Upsert", mock.Anything, domain.RoomInfo{ID: "r1", Peers: 2}).
		Run(func(mock.Arguments) { upserts.Add(1) }).
		Return(nil)

	sync := NewDirectorySync(dir, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sync.Refresh(ctx, 5*time.Millisecond, func() []domain.RoomInfo {
			return []domain.RoomInfo{{ID: "r1", Peers: 2}}
		})
	}()

	assert.Eventually(t, func() bool { return upserts.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh did not stop after cancel")
	}
}

func TestDirectorySync_RefreshDisabled(t *testing.T) {
	dir := new(MockRoomDirectory)
	sync := NewDirectorySync(dir, zap.NewNop().Sugar())

	sync.Refresh(context.Background(), 0, func() []domain.RoomInfo {
		t.Fatal("rooms must not be listed when refresh is disabled")
		return nil
	})
	dir.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestMultiObserver_OrderedFanOut(t *testing.T) {
	first, second := &recordingObserver{}, &recordingObserver{}
	f := newFixture(t)
	f.registry.observer = MultiObserver{first, second, NopObserver{}}

	room, _ := f.join(t, "r1", "a")
	room.Leave("a")

	want := []string{"created:r1", "updated:r1", "updated:r1", "closed:r1"}
	assert.Equal(t, want, first.calls)
	assert.Equal(t, want, second.calls)
}

var _ ports.RoomObserver = (*DirectorySync)(nil)
