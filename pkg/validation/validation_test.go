package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"simple", "r1", false},
		{"meeting link style", "team.standup:2024-05", false},
		{"empty", "", true},
		{"spaces", "my room", true},
		{"slash", "a/b", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestValidateResourceID(t *testing.T) {
	assert.NoError(t, ValidateResourceID("3f2c9a1e-7d1b-4a33-9a1d-1f0b2c3d4e5f", "transportId"))
	assert.NoError(t, ValidateResourceID("producer_1", "producerId"))

	err := ValidateResourceID("", "consumerId")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "consumerId")
	}
	assert.Error(t, ValidateResourceID("bad id", "transportId"))
	assert.Error(t, ValidateResourceID(strings.Repeat("x", 101), "transportId"))
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"empty allowed", "", false},
		{"unicode", "Zoë Ünal", false},
		{"control char", "bad\x07name", true},
		{"invalid utf8", "\xff\xfe", true},
		{"too long", strings.Repeat("é", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.value)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestValidateMediaKindAndDirection(t *testing.T) {
	assert.NoError(t, ValidateMediaKind("audio"))
	assert.NoError(t, ValidateMediaKind("video"))
	assert.Error(t, ValidateMediaKind(""))
	assert.Error(t, ValidateMediaKind("data"))

	assert.NoError(t, ValidateDirection(""))
	assert.NoError(t, ValidateDirection("send"))
	assert.NoError(t, ValidateDirection("recv"))
	assert.Error(t, ValidateDirection("both"))
}
