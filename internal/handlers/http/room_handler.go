package http

import (
	"errors"
	"net/http"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
	"vcv/internal/core/services"
	apperrors "vcv/pkg/errors"
	"vcv/pkg/validation"

	"github.com/gin-gonic/gin"
)

// RoomSource is the live view of rooms on this instance.
type RoomSource interface {
	List() []domain.RoomInfo
	Get(id domain.RoomID) (*services.Room, bool)
}

type RoomHandler struct {
	rooms     RoomSource
	directory ports.RoomDirectory
}

func NewRoomHandler(rooms RoomSource, directory ports.RoomDirectory) *RoomHandler {
	return &RoomHandler{rooms: rooms, directory: directory}
}

func (h *RoomHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:id", h.GetRoom)
}

// ListRooms answers from the local registry, or from the shared directory
// with ?scope=directory.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	switch c.DefaultQuery("scope", "local") {
	case "local":
		rooms := h.rooms.List()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
	case "directory":
		rooms, err := h.directory.List(c.Request.Context())
		if err != nil {
			c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "room directory unavailable", http.StatusServiceUnavailable))
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
	default:
		c.Error(apperrors.NewInvalidInputError("scope must be local or directory"))
	}
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateRoomID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if room, ok := h.rooms.Get(domain.RoomID(id)); ok {
		c.JSON(http.StatusOK, gin.H{"room": room.Info(), "local": true})
		return
	}

	info, err := h.directory.Get(c.Request.Context(), domain.RoomID(id))
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.Error(apperrors.NewNotFoundError("room").WithContext("room_id", id))
	case err != nil:
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "room directory unavailable", http.StatusServiceUnavailable))
	default:
		c.JSON(http.StatusOK, gin.H{"room": info, "local": false})
	}
}
