package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/core/domain"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret", "vcv", time.Hour)

	token, expires, err := auth.IssueJoinToken("r1", "Alice", domain.RolePresenter)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := auth.ValidateJoinToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), claims.RoomID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, domain.RolePresenter, claims.Role)
}

func TestAuthService_Rejections(t *testing.T) {
	auth := NewAuthService("secret", "vcv", time.Hour)
	token, _, err := auth.IssueJoinToken("r1", "Alice", domain.RoleAttendee)
	require.NoError(t, err)

	_, err = NewAuthService("other-secret", "vcv", time.Hour).ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAuthService("secret", "someone-else", time.Hour).ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.ValidateJoinToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewAuthService("secret", "vcv", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
