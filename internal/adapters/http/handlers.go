package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/store"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app/orch"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HistoryReader serves stored chat lines. Nil when persistence is off.
type HistoryReader interface {
	History(ctx context.Context, roomID domain.RoomID, limit int) ([]store.ChatLine, error)
}

type handlers struct {
	orch    *orch.Orchestrator
	history HistoryReader
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.orch.Registry.Count(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) roomMembers(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members := h.orch.Rooms.MembersOf(id)
	c.JSON(http.StatusOK, gin.H{
		"roomId":      id,
		"memberCount": len(members),
		"members":     members,
		"typing":      h.orch.Typing.Typing(id),
	})
}

func (h *handlers) roomHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..200"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	lines, err := h.history.History(ctx, id, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("history")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id, "messages": lines})
}

func (h *handlers) userPresence(c *gin.Context) {
	uid := domain.UserID(c.Param("id"))
	n := h.orch.Registry.DeviceCount(uid)
	c.JSON(http.StatusOK, gin.H{"userId": uid, "online": n > 0, "devices": n})
}

// pushRequest is the body of both push endpoints. Payload must be a JSON object.
type pushRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

func (h *handlers) pushNotification(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid payload"})
		return
	}
	uid := domain.UserID(c.Param("id"))
	n, err := h.orch.PushNotification(uid, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"userId": uid, "delivered": n})
}

func (h *handlers) pushRoomEvent(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid payload"})
		return
	}
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.orch.PushRoomEvent(id, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"roomId": id, "delivered": len(res.Delivered), "failed": len(res.Failed)})
}
