package testutils

import (
	"sync"

	"vcv/internal/core/domain"
)

// Event is one push recorded by Notifier.
type Event struct {
	PeerID  domain.PeerID
	Name    string
	Payload interface{}
}

// Notifier records every push event in delivery order.
type Notifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *Notifier) Notify(peerID domain.PeerID, event string, payload interface{}) {
	n.mu.Lock()
	n.events = append(n.events, Event{PeerID: peerID, Name: event, Payload: payload})
	n.mu.Unlock()
}

// For returns the events delivered to peerID, optionally filtered by name.
func (n *Notifier) For(peerID domain.PeerID, names ...string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Event
	for _, e := range n.events {
		if e.PeerID != peerID {
			continue
		}
		if len(names) > 0 && !contains(names, e.Name) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (n *Notifier) All() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
