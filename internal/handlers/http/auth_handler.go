package http

import (
	"net/http"
	"strings"
	"time"

	"vcv/internal/core/domain"
	"vcv/pkg/errors"
	"vcv/pkg/validation"

	"github.com/gin-gonic/gin"
)

type TokenIssuer interface {
	IssueJoinToken(roomID domain.RoomID, name string, role domain.Role) (string, time.Time, error)
}

type AuthHandler struct {
	issuer TokenIssuer
}

func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/auth/token", h.IssueToken)
}

type TokenRequest struct {
	RoomID string `json:"room_id" binding:"required,max=128"`
	Name   string `json:"name" binding:"max=64"`
	Role   string `json:"role"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken mints a join token for one room and identity.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validation.ValidateRoomID(req.RoomID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateDisplayName(req.Name); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		c.Error(errors.NewInvalidInputError("role must be presenter or attendee"))
		return
	}

	token, expires, err := h.issuer.IssueJoinToken(domain.RoomID(req.RoomID), req.Name, role)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to issue token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{Token: token, ExpiresAt: expires})
}
