package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/openwave-labs/openwave/internal/auth"
	"github.com/openwave-labs/openwave/internal/realtime"
	"github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/response"
)

// RealtimeHandler upgrades HTTP requests into authenticated websocket streams.
// Identity resolution happens here, before any upgrade; routers then apply
// their own authorization (participant or observer checks).
type RealtimeHandler struct {
	jwt   *iauth.JWTService
	chat  *realtime.ChatRouter
	calls *realtime.CallRouter
}

func NewRealtimeHandler(jwt *iauth.JWTService, chat *realtime.ChatRouter, calls *realtime.CallRouter) *RealtimeHandler {
	return &RealtimeHandler{jwt: jwt, chat: chat, calls: calls}
}

// GET /ws/chat/:conversation_id
func (h *RealtimeHandler) Conversation(c *gin.Context) {
	identity, ok := h.resolve(c)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" {
		response.Error(c, errors.NewBadRequest("conversation id is required"))
		return
	}

	h.chat.ServeConversation(c.Writer, c.Request, identity.UserID, conversationID)
}

// GET /ws/global
func (h *RealtimeHandler) Global(c *gin.Context) {
	identity, ok := h.resolve(c)
	if !ok {
		return
	}

	h.chat.ServeGlobal(c.Writer, c.Request, identity.UserID)
}

// GET /ws/calls/:conversation_id
func (h *RealtimeHandler) Calls(c *gin.Context) {
	identity, ok := h.resolve(c)
	if !ok {
		return
	}

	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" {
		response.Error(c, errors.NewBadRequest("conversation id is required"))
		return
	}

	h.calls.ServeCalls(c.Writer, c.Request, identity.UserID, conversationID)
}

// GET /ws/observe/calls
func (h *RealtimeHandler) Observe(c *gin.Context) {
	identity, ok := h.resolve(c)
	if !ok {
		return
	}

	h.calls.ServeObserver(c.Writer, c.Request, identity.UserID)
}

// resolve rejects unauthenticated handshakes with a plain 401 before any
// websocket upgrade takes place.
func (h *RealtimeHandler) resolve(c *gin.Context) (iauth.Identity, bool) {
	identity := h.jwt.ResolveIdentity(c.Request)
	if !identity.Authenticated {
		response.Error(c, errors.ErrUnauthorized)
		return iauth.Anonymous, false
	}
	return identity, true
}
