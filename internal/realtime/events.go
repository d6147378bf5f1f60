package realtime

import (
	"encoding/json"
	"time"

	"github.com/openwave-labs/openwave/internal/models"
)

// EventType discriminates inbound protocol events. The set is closed: every
// router dispatches through one exhaustive switch, so adding an event type is
// a compile-visible change rather than a dynamic method lookup.
type EventType string

const (
	EventChatMessage        EventType = "chat_message"
	EventMarkRead           EventType = "mark_read"
	EventTyping             EventType = "typing"
	EventCallInitiate       EventType = "call_initiate"
	EventCallAccept         EventType = "call_accept"
	EventCallReject         EventType = "call_reject"
	EventCallEnd            EventType = "call_end"
	EventWebRTCOffer        EventType = "webrtc_offer"
	EventWebRTCAnswer       EventType = "webrtc_answer"
	EventWebRTCICECandidate EventType = "webrtc_ice_candidate"
	EventPing               EventType = "ping"
)

// InboundEvent is the JSON envelope clients send. Fields are populated
// according to Type; unused fields stay zero.
type InboundEvent struct {
	Type         EventType       `json:"type"`
	Content      string          `json:"content,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	IsTyping     bool            `json:"is_typing,omitempty"`
	ReceiverID   string          `json:"receiver_id,omitempty"`
	CallType     string          `json:"call_type,omitempty"`
	CallID       string          `json:"call_id,omitempty"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	SignalData   json.RawMessage `json:"signal_data,omitempty"`
}

// Event is the outbound envelope. Payload fields marshal beside the type
// discriminator, matching the wire format clients consume.
type Event struct {
	Type   string
	Fields map[string]any
}

// MarshalJSON flattens the payload next to the type discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	for key, value := range e.Fields {
		out[key] = value
	}
	out["type"] = e.Type
	return json.Marshal(out)
}

// NewEvent builds an outbound event with the supplied payload.
func NewEvent(eventType string, fields map[string]any) Event {
	return Event{Type: eventType, Fields: fields}
}

// ErrorEvent reports a recoverable protocol or domain failure to the
// originating connection. It never accompanies a connection close.
func ErrorEvent(message string) Event {
	return NewEvent("error", map[string]any{"message": message})
}

// PongEvent answers an application-level ping.
func PongEvent() Event {
	return NewEvent("pong", nil)
}

// ConnectionEstablishedEvent confirms a successful admit.
func ConnectionEstablishedEvent(message string) Event {
	return NewEvent("connection_established", map[string]any{"message": message})
}

// Serialization boundary: every persisted entity crosses into an outbound
// payload through exactly one of the functions below, so identifier and
// timestamp formatting stays uniform across call sites.

func serializeUser(user *models.User) map[string]any {
	if user == nil {
		return nil
	}
	return map[string]any{
		"id":           user.ID,
		"username":     user.Username,
		"profile_name": user.DisplayName(),
		"avatar":       user.Avatar,
	}
}

func serializeMessage(message *models.Message) map[string]any {
	payload := map[string]any{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"content":         message.Content,
		"sender":          serializeUser(message.Sender),
		"sender_id":       message.SenderID,
		"file_url":        message.FileURL,
		"file_type":       message.FileType,
		"is_read":         message.IsRead,
		"created_at":      formatTime(message.CreatedAt),
	}
	if message.ReadAt != nil {
		payload["read_at"] = formatTime(*message.ReadAt)
	}
	return payload
}

func serializeGlobalMessage(message *models.GlobalMessage) map[string]any {
	return map[string]any{
		"id":         message.ID,
		"content":    message.Content,
		"sender":     serializeUser(message.Sender),
		"sender_id":  message.SenderID,
		"file_url":   message.FileURL,
		"file_type":  message.FileType,
		"created_at": formatTime(message.CreatedAt),
	}
}

func serializeCall(call *models.Call) map[string]any {
	payload := map[string]any{
		"id":              call.ID,
		"conversation_id": call.ConversationID,
		"caller_id":       call.CallerID,
		"receiver_id":     call.ReceiverID,
		"call_type":       string(call.CallType),
		"status":          string(call.Status),
		"started_at":      formatTime(call.StartedAt),
		"duration":        call.Duration,
	}
	if call.AnsweredAt != nil {
		payload["answered_at"] = formatTime(*call.AnsweredAt)
	}
	if call.EndedAt != nil {
		payload["ended_at"] = formatTime(*call.EndedAt)
	}
	return payload
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
