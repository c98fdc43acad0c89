package ports

import "vcv/internal/core/domain"

// Notifier delivers a push event to one peer. Notify must not block: rooms
// call it while holding their lock.
type Notifier interface {
	Notify(peerID domain.PeerID, event string, payload interface{})
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(peerID domain.PeerID, event string, payload interface{})

func (f NotifierFunc) Notify(peerID domain.PeerID, event string, payload interface{}) {
	f(peerID, event, payload)
}

// RoomObserver receives room lifecycle snapshots in mutation order. Calls
// happen under the room lock, so implementations must be quick and must not
// call back into the registry.
type RoomObserver interface {
	RoomCreated(info domain.RoomInfo)
	RoomUpdated(info domain.RoomInfo)
	RoomClosed(id domain.RoomID)
}
