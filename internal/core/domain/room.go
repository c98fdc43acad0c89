package domain

import "time"

type (
	RoomID      string
	PeerID      string
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// Role is advisory; nothing in the room enforces it.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleAttendee  Role = "attendee"
)

// ParseRole maps the wire value to a Role, defaulting to attendee.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "":
		return RoleAttendee, true
	case RolePresenter, RoleAttendee:
		return Role(s), true
	default:
		return "", false
	}
}

// PeerInfo is the identity a peer joins with.
type PeerInfo struct {
	ID   PeerID
	Name string
	Role Role
}

// RoomInfo is a point-in-time summary of a live room.
type RoomInfo struct {
	ID         RoomID    `json:"id"`
	InstanceID string    `json:"instanceId"`
	Peers      int       `json:"peers"`
	Producers  int       `json:"producers"`
	Consumers  int       `json:"consumers"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
