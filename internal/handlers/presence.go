package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openwave-labs/openwave/internal/services"
	"github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/response"
)

// PresenceHandler reports online state derived from realtime heartbeats.
type PresenceHandler struct {
	presence *services.PresenceService
}

func NewPresenceHandler(presence *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GET /api/presence/:user_id
func (h *PresenceHandler) Get(c *gin.Context) {
	if currentUserID(c) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user id is required"))
		return
	}

	online, err := h.presence.IsOnline(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id": userID,
		"online":  online,
	})
}
