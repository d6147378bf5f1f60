package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openwave-labs/openwave/internal/models"
	"github.com/openwave-labs/openwave/internal/services"
	"github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/response"
)

// ConversationHandler exposes the REST reconciliation surface: conversation
// lists and message history that reconnecting clients replay before resuming
// live events.
type ConversationHandler struct {
	chat *services.ChatService
}

func NewConversationHandler(chat *services.ChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	conversations, err := h.chat.ListConversations(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(conversations))
	for i := range conversations {
		payload = append(payload, conversationPayload(&conversations[i]))
	}
	response.Success(c, http.StatusOK, payload)
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1"`
}

// POST /api/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createConversationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	conversation, err := h.chat.CreateConversation(requestContext(c), userID, req.ParticipantIDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, conversationPayload(conversation))
}

// GET /api/conversations/:conversation_id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	ok, err := h.chat.IsParticipant(requestContext(c), conversationID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, errors.ErrForbidden)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	var before time.Time
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("before must be an RFC 3339 timestamp"))
			return
		}
		before = parsed
	}

	messages, err := h.chat.ListMessages(requestContext(c), conversationID, limit, before)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(messages))
	for i := range messages {
		payload = append(payload, messagePayload(&messages[i]))
	}
	response.Success(c, http.StatusOK, payload)
}

// GET /api/messages/global
func (h *ConversationHandler) GlobalMessages(c *gin.Context) {
	if currentUserID(c) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	messages, err := h.chat.ListGlobalMessages(requestContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(messages))
	for i := range messages {
		message := &messages[i]
		payload = append(payload, gin.H{
			"id":         message.ID,
			"content":    message.Content,
			"sender":     userPayload(message.Sender),
			"sender_id":  message.SenderID,
			"created_at": message.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	response.Success(c, http.StatusOK, payload)
}

func conversationPayload(conversation *models.Conversation) gin.H {
	participants := make([]gin.H, 0, len(conversation.Participants))
	for i := range conversation.Participants {
		participants = append(participants, userPayload(&conversation.Participants[i]))
	}

	payload := gin.H{
		"id":           conversation.ID,
		"participants": participants,
		"updated_at":   conversation.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if conversation.LastMessage != nil {
		payload["last_message"] = messagePayload(conversation.LastMessage)
	}
	return payload
}

func messagePayload(message *models.Message) gin.H {
	payload := gin.H{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"content":         message.Content,
		"sender":          userPayload(message.Sender),
		"sender_id":       message.SenderID,
		"is_read":         message.IsRead,
		"created_at":      message.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if message.ReadAt != nil {
		payload["read_at"] = message.ReadAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func userPayload(user *models.User) gin.H {
	if user == nil {
		return nil
	}
	return gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"profile_name": user.DisplayName(),
		"avatar":       user.Avatar,
	}
}
