package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// EventType represents the type of event
type EventType string

const (
	EventRoomCreated EventType = "room.created"
	EventRoomUpdated EventType = "room.updated"
	EventRoomClosed  EventType = "room.closed"
)

const publishTimeout = 2 * time.Second

// Event is a room lifecycle change announced to the other instances.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	RoomID     domain.RoomID    `json:"room_id"`
	Room       *domain.RoomInfo `json:"room,omitempty"`
}

// EventBus publishes local room events on a Redis channel and delivers the
// events of other instances. As a RoomObserver it never blocks the room:
// events are queued and dropped when the queue is full.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	queue      chan *Event
	dropped    atomic.Int64
	logger     *zap.SugaredLogger
}

var _ ports.RoomObserver = (*EventBus)(nil)

func NewEventBus(
	client redis.UniversalClient,
	keyPrefix string,
	instanceID string,
	queueSize int,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    keyPrefix + "events",
		queue:      make(chan *Event, queueSize),
		logger:     logger,
	}
}

func (eb *EventBus) RoomCreated(info domain.RoomInfo) {
	eb.enqueue(&Event{Type: EventRoomCreated, RoomID: info.ID, Room: &info})
}

func (eb *EventBus) RoomUpdated(info domain.RoomInfo) {
	eb.enqueue(&Event{Type: EventRoomUpdated, RoomID: info.ID, Room: &info})
}

func (eb *EventBus) RoomClosed(id domain.RoomID) {
	eb.enqueue(&Event{Type: EventRoomClosed, RoomID: id})
}

func (eb *EventBus) enqueue(event *Event) {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()
	select {
	case eb.queue <- event:
	default:
		eb.dropped.Add(1)
	}
}

// Dropped counts events discarded because the queue was full.
func (eb *EventBus) Dropped() int64 { return eb.dropped.Load() }

// Run publishes queued events until ctx ends.
func (eb *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.queue:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := eb.Publish(pubCtx, event); err != nil {
				eb.logger.Debugw("failed to publish room event", "type", event.Type, "room_id", event.RoomID, "error", err)
			}
			cancel()
		}
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe calls handler for every event published by another instance,
// until ctx ends.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event)) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if event, ok := eb.decode(msg.Payload); ok {
				handler(event)
			}
		}
	}
}

func (eb *EventBus) decode(payload string) (*Event, bool) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", payload)
		return nil, false
	}
	if event.InstanceID == eb.instanceID || event.RoomID == "" {
		return nil, false
	}
	return &event, true
}
