package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// RoomIDRegex allows the characters meeting links commonly carry.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

	// ResourceIDRegex matches transport, producer and consumer ids.
	ResourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	maxRoomIDLength     = 128
	maxResourceIDLength = 100
	maxDisplayNameRunes = 64
)

func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if len(roomID) > maxRoomIDLength {
		return fmt.Errorf("room id is too long (max %d characters)", maxRoomIDLength)
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room id format")
	}
	return nil
}

// ValidateResourceID checks a transport, producer or consumer id. field is
// used in the error message.
func ValidateResourceID(id, field string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > maxResourceIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", field, maxResourceIDLength)
	}
	if !ResourceIDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", field)
	}
	return nil
}

// ValidateDisplayName accepts an empty name; anonymous peers are allowed.
func ValidateDisplayName(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("name is not valid UTF-8")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return fmt.Errorf("name is too long (max %d characters)", maxDisplayNameRunes)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("name contains control characters")
	}
	return nil
}

func ValidateMediaKind(kind string) error {
	switch kind {
	case "audio", "video":
		return nil
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("invalid kind %q (must be audio or video)", kind)
	}
}

// ValidateDirection checks the optional createTransport direction hint.
func ValidateDirection(direction string) error {
	switch direction {
	case "", "send", "recv":
		return nil
	default:
		return fmt.Errorf("invalid direction %q (must be send or recv)", direction)
	}
}
