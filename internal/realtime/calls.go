package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/openwave-labs/openwave/internal/models"
	"github.com/openwave-labs/openwave/pkg/logger"
)

// CallStore is the call lifecycle surface the signaling router needs.
// Implemented by services.CallService.
type CallStore interface {
	InitiateCall(ctx context.Context, conversationID, callerID, receiverID, callType string) (*models.Call, error)
	GetCall(ctx context.Context, callID string) (*models.Call, error)
	AcceptCall(ctx context.Context, callID, userID string) (*models.Call, error)
	RejectCall(ctx context.Context, callID, userID string) (*models.Call, error)
	EndCall(ctx context.Context, callID, userID string) (*models.Call, error)
}

// ParticipantChecker gates call-room admission on conversation membership.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// CallRouter serves the call-signaling websocket endpoints: per-conversation
// signaling rooms for participants and a read-only observer room for users
// holding the observer capability. Call lifecycle transitions go through the
// store; WebRTC payloads are relayed opaquely and never persisted.
type CallRouter struct {
	hub          *Hub
	calls        CallStore
	participants ParticipantChecker
	users        UserDirectory
	log          *zap.Logger
}

// NewCallRouter constructs a CallRouter.
func NewCallRouter(hub *Hub, calls CallStore, participants ParticipantChecker, users UserDirectory) (*CallRouter, error) {
	if hub == nil || calls == nil || participants == nil || users == nil {
		return nil, errors.New("call router: hub, calls, participants and users are required")
	}
	return &CallRouter{
		hub:          hub,
		calls:        calls,
		participants: participants,
		users:        users,
		log:          logger.WithModule("realtime.calls"),
	}, nil
}

// ServeCalls upgrades a conversation participant into that conversation's
// signaling room. Non-participants are refused with 403 before the upgrade.
func (r *CallRouter) ServeCalls(w http.ResponseWriter, req *http.Request, userID, conversationID string) {
	ctx := req.Context()

	ok, err := r.participants.IsParticipant(ctx, conversationID, userID)
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

	conn := NewConnection(r.hub, socket, userID, "call")
	r.hub.Admit(conn, CallGroup(conversationID), UserCallGroup(userID))
	conn.Send(ConnectionEstablishedEvent("Connected to call signaling"))

	conn.Run(func(event InboundEvent) {
		r.route(conn, user, conversationID, event)
	})
}

// ServeObserver upgrades a user with the observer capability into the
// read-only global call room. Every call lifecycle event is mirrored there.
func (r *CallRouter) ServeObserver(w http.ResponseWriter, req *http.Request, userID string) {
	user, err := r.users.Lookup(req.Context(), userID)
	if err != nil || !user.IsObserver {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := NewUpgrader()
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(r.hub, socket, userID, "call")
	r.hub.Admit(conn, ObserverCallRoom)
	conn.Send(ConnectionEstablishedEvent("Connected to call observer room"))

	conn.Run(func(event InboundEvent) {
		switch event.Type {
		case EventPing:
			conn.Send(PongEvent())
		default:
			conn.Send(ErrorEvent("Observer connections are read-only"))
		}
	})
}

func (r *CallRouter) route(conn *Connection, user *models.User, conversationID string, event InboundEvent) {
	ctx := context.Background()

	switch event.Type {
	case EventCallInitiate:
		call, err := r.calls.InitiateCall(ctx, conversationID, user.ID, event.ReceiverID, event.CallType)
		if err != nil {
			conn.Send(ErrorEvent(eventErrorMessage(err)))
			return
		}
		// The caller gets a direct confirmation; the receiver is rung on their
		// personal call group so every open signaling connection hears it, not
		// just the ones attached to this conversation.
		conn.Send(NewEvent("call_initiated", map[string]any{
			"call": serializeCall(call),
		}))
		ring := NewEvent("incoming_call", map[string]any{
			"call":   serializeCall(call),
			"caller": serializeUser(user),
		})
		r.hub.Broadcast(UserCallGroup(call.ReceiverID), ring)
		r.hub.Broadcast(ObserverCallRoom, ring)

	case EventCallAccept:
		r.transition(conn, conversationID, "call_accepted", true, func() (*models.Call, error) {
			return r.calls.AcceptCall(ctx, event.CallID, user.ID)
		})

	case EventCallReject:
		r.transition(conn, conversationID, "call_rejected", true, func() (*models.Call, error) {
			return r.calls.RejectCall(ctx, event.CallID, user.ID)
		})

	case EventCallEnd:
		r.transition(conn, conversationID, "call_ended", false, func() (*models.Call, error) {
			return r.calls.EndCall(ctx, event.CallID, user.ID)
		})

	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICECandidate:
		r.relay(conn, user.ID, event)

	case EventPing:
		conn.Send(PongEvent())

	default:
		conn.Send(ErrorEvent("Unknown event type: " + string(event.Type)))
	}
}

// transition runs one guarded lifecycle change and fans out the result. A
// failed transition reaches only the originator. When notifyCaller is set the
// caller's personal call group is included, because the answer to a ring must
// reach the caller even when their live connection sits in another
// conversation's signaling room.
func (r *CallRouter) transition(conn *Connection, conversationID, eventType string, notifyCaller bool, apply func() (*models.Call, error)) {
	call, err := apply()
	if err != nil {
		conn.Send(ErrorEvent(eventErrorMessage(err)))
		return
	}

	outbound := NewEvent(eventType, map[string]any{
		"call": serializeCall(call),
	})
	if notifyCaller {
		// The caller's room connection is also in their personal group, so
		// skip them on the room broadcast to deliver exactly once.
		r.hub.BroadcastExcept(CallGroup(conversationID), outbound, call.CallerID)
		r.hub.Broadcast(UserCallGroup(call.CallerID), outbound)
	} else {
		r.hub.Broadcast(CallGroup(conversationID), outbound)
	}
	r.hub.Broadcast(ObserverCallRoom, outbound)
}

// relay forwards an opaque WebRTC payload to the target user's signaling
// connections, tagging the sender so the peer can correlate.
func (r *CallRouter) relay(conn *Connection, fromUserID string, event InboundEvent) {
	targetID := strings.TrimSpace(event.TargetUserID)
	if targetID == "" {
		conn.Send(ErrorEvent("Signaling relay requires a target user"))
		return
	}

	r.hub.Broadcast(UserCallGroup(targetID), NewEvent(string(event.Type), map[string]any{
		"signal_data":  event.SignalData,
		"from_user_id": fromUserID,
		"call_id":      event.CallID,
	}))
}
