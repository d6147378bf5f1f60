package realtime

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/openwave-labs/openwave/internal/models"
	apperrors "github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/logger"
)

// ChatStore is the persistence surface the chat router needs. Implemented by
// services.ChatService.
type ChatStore interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	CreateMessage(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
	CreateGlobalMessage(ctx context.Context, senderID, content string) (*models.GlobalMessage, error)
	MarkMessageRead(ctx context.Context, messageID, readerID string) (*models.Message, bool, error)
}

// UserDirectory resolves user ids to display attributes for event enrichment.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*models.User, error)
}

// Presence tracks online markers for connected users.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
}

// ChatRouter serves the conversation and global-room websocket endpoints. All
// admission checks run before the protocol upgrade; a rejected client receives
// a plain HTTP status and never touches the hub.
type ChatRouter struct {
	hub      *Hub
	store    ChatStore
	users    UserDirectory
	presence Presence
	log      *zap.Logger
}

// NewChatRouter constructs a ChatRouter.
func NewChatRouter(hub *Hub, store ChatStore, users UserDirectory, presence Presence) (*ChatRouter, error) {
	if hub == nil || store == nil || users == nil || presence == nil {
		return nil, errors.New("chat router: hub, store, users and presence are required")
	}
	return &ChatRouter{
		hub:      hub,
		store:    store,
		users:    users,
		presence: presence,
		log:      logger.WithModule("realtime.chat"),
	}, nil
}

// ServeConversation upgrades an authenticated participant into a conversation
// room. Non-participants are refused with 403 before the upgrade.
func (r *ChatRouter) ServeConversation(w http.ResponseWriter, req *http.Request, userID, conversationID string) {
	ctx := req.Context()

	ok, err := r.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		r.log.Error("participant check failed", zap.Error(err), zap.String("conversation_id", conversationID))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	user, err := r.users.Lookup(ctx, userID)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := NewUpgrader()
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(r.hub, socket, userID, "chat")
	conn.OnPong(func() {
		_ = r.presence.Heartbeat(context.Background(), userID)
	})
	conn.OnClose(func() {
		if r.hub.GroupSize(UserGroup(userID)) == 0 {
			_ = r.presence.SetOffline(context.Background(), userID)
		}
	})

	r.hub.Admit(conn, ChatGroup(conversationID), UserGroup(userID))
	_ = r.presence.SetOnline(context.Background(), userID)
	conn.Send(ConnectionEstablishedEvent("Connected to conversation"))

	conn.Run(func(event InboundEvent) {
		r.routeConversation(conn, user, conversationID, event)
	})
}

func (r *ChatRouter) routeConversation(conn *Connection, user *models.User, conversationID string, event InboundEvent) {
	ctx := context.Background()

	switch event.Type {
	case EventChatMessage:
		message, err := r.store.CreateMessage(ctx, conversationID, user.ID, event.Content)
		if err != nil {
			conn.Send(ErrorEvent(eventErrorMessage(err)))
			return
		}
		r.hub.Broadcast(ChatGroup(conversationID), NewEvent("chat_message", map[string]any{
			"message": serializeMessage(message),
		}))
		r.notifyConversationUpdate(ctx, conversationID, message)

	case EventMarkRead:
		message, changed, err := r.store.MarkMessageRead(ctx, event.MessageID, user.ID)
		if err != nil {
			conn.Send(ErrorEvent(eventErrorMessage(err)))
			return
		}
		if !changed {
			return
		}
		payload := map[string]any{
			"message_id": message.ID,
			"user_id":    user.ID,
		}
		if message.ReadAt != nil {
			payload["read_at"] = formatTime(*message.ReadAt)
		}
		r.hub.Broadcast(ChatGroup(conversationID), NewEvent("message_read", payload))

	case EventTyping:
		r.hub.BroadcastExcept(ChatGroup(conversationID), NewEvent("typing_indicator", map[string]any{
			"user_id":   user.ID,
			"username":  user.DisplayName(),
			"is_typing": event.IsTyping,
		}), user.ID)

	case EventPing:
		conn.Send(PongEvent())

	default:
		conn.Send(ErrorEvent("Unknown event type: " + string(event.Type)))
	}
}

// notifyConversationUpdate pushes the fresh last-message summary to every
// participant's personal group so conversation lists stay current even for
// users not viewing the room.
func (r *ChatRouter) notifyConversationUpdate(ctx context.Context, conversationID string, message *models.Message) {
	participantIDs, err := r.store.ParticipantIDs(ctx, conversationID)
	if err != nil {
		r.log.Error("list participants failed", zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}

	event := NewEvent("conversation_update", map[string]any{
		"conversation_id": conversationID,
		"last_message":    serializeMessage(message),
		"sender_id":       message.SenderID,
		"timestamp":       formatTime(message.CreatedAt),
	})
	for _, participantID := range participantIDs {
		r.hub.Broadcast(UserGroup(participantID), event)
	}
}

// ServeGlobal upgrades an authenticated user into the global room and
// announces the join to everyone already present.
func (r *ChatRouter) ServeGlobal(w http.ResponseWriter, req *http.Request, userID string) {
	ctx := req.Context()

	user, err := r.users.Lookup(ctx, userID)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := NewUpgrader()
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(r.hub, socket, userID, "global")
	conn.OnPong(func() {
		_ = r.presence.Heartbeat(context.Background(), userID)
	})
	conn.OnClose(func() {
		if r.hub.GroupSize(UserGroup(userID)) == 0 {
			_ = r.presence.SetOffline(context.Background(), userID)
		}
		r.hub.BroadcastExcept(GlobalRoom, NewEvent("user_left", map[string]any{
			"user": serializeUser(user),
		}), userID)
	})

	r.hub.Admit(conn, GlobalRoom, UserGroup(userID))
	_ = r.presence.SetOnline(context.Background(), userID)
	conn.Send(ConnectionEstablishedEvent("Connected to global room"))
	r.hub.BroadcastExcept(GlobalRoom, NewEvent("user_joined", map[string]any{
		"user": serializeUser(user),
	}), userID)

	conn.Run(func(event InboundEvent) {
		r.routeGlobal(conn, user, event)
	})
}

func (r *ChatRouter) routeGlobal(conn *Connection, user *models.User, event InboundEvent) {
	ctx := context.Background()

	switch event.Type {
	case EventChatMessage:
		message, err := r.store.CreateGlobalMessage(ctx, user.ID, event.Content)
		if err != nil {
			conn.Send(ErrorEvent(eventErrorMessage(err)))
			return
		}
		r.hub.Broadcast(GlobalRoom, NewEvent("chat_message", map[string]any{
			"message": serializeGlobalMessage(message),
		}))

	case EventTyping:
		r.hub.BroadcastExcept(GlobalRoom, NewEvent("typing_indicator", map[string]any{
			"user_id":   user.ID,
			"username":  user.DisplayName(),
			"is_typing": event.IsTyping,
		}), user.ID)

	case EventMarkRead:
		conn.Send(ErrorEvent("Read receipts are not supported in the global room"))

	case EventPing:
		conn.Send(PongEvent())

	default:
		conn.Send(ErrorEvent("Unknown event type: " + string(event.Type)))
	}
}

// eventErrorMessage maps a domain failure to the client-facing error payload.
// Unexpected errors never leak internals.
func eventErrorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	logger.WithModule("realtime").Error("event handling failed", zap.Error(err))
	return "Internal server error"
}
