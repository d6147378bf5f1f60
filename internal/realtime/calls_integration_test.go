package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/openwave-labs/openwave/internal/models"
	apperrors "github.com/openwave-labs/openwave/pkg/errors"
)

type fakeCallStore struct {
	mu    sync.Mutex
	calls map[string]*models.Call

	rejectErr error
}

func newFakeCallStore() *fakeCallStore {
	return &fakeCallStore{calls: make(map[string]*models.Call)}
}

func (f *fakeCallStore) InitiateCall(_ context.Context, conversationID, callerID, receiverID, callType string) (*models.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := &models.Call{
		ConversationID: conversationID,
		CallerID:       callerID,
		ReceiverID:     receiverID,
		CallType:       models.CallType(callType),
		Status:         models.CallRinging,
		StartedAt:      time.Now().UTC(),
	}
	call.ID = uuid.NewString()
	f.calls[call.ID] = call
	return call, nil
}

func (f *fakeCallStore) GetCall(_ context.Context, callID string) (*models.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call, ok := f.calls[callID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return call, nil
}

func (f *fakeCallStore) AcceptCall(_ context.Context, callID, userID string) (*models.Call, error) {
	return f.mutate(callID, models.CallAccepted)
}

func (f *fakeCallStore) RejectCall(_ context.Context, callID, userID string) (*models.Call, error) {
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	return f.mutate(callID, models.CallRejected)
}

func (f *fakeCallStore) EndCall(_ context.Context, callID, userID string) (*models.Call, error) {
	return f.mutate(callID, models.CallEnded)
}

func (f *fakeCallStore) mutate(callID string, status models.CallStatus) (*models.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call, ok := f.calls[callID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	call.Status = status
	return call, nil
}

type callTestEnv struct {
	server *httptest.Server
	store  *fakeCallStore
}

func newCallTestEnv(t *testing.T) *callTestEnv {
	t.Helper()

	alice := &models.User{Username: "alice"}
	alice.ID = "alice"
	bob := &models.User{Username: "bob"}
	bob.ID = "bob"
	watcher := &models.User{Username: "watcher", IsObserver: true}
	watcher.ID = "watcher"
	users := map[string]*models.User{"alice": alice, "bob": bob, "watcher": watcher}

	store := newFakeCallStore()
	participants := newFakeChatStore(users, map[string][]string{
		"conv-1": {"alice", "bob"},
		"conv-2": {"alice", "bob"},
	})

	router, err := NewCallRouter(NewHub(), store, participants, &fakeDirectory{users: users})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/calls", func(w http.ResponseWriter, r *http.Request) {
		conversationID := r.URL.Query().Get("conv")
		if conversationID == "" {
			conversationID = "conv-1"
		}
		router.ServeCalls(w, r, r.URL.Query().Get("uid"), conversationID)
	})
	mux.HandleFunc("/ws/observe", func(w http.ResponseWriter, r *http.Request) {
		router.ServeObserver(w, r, r.URL.Query().Get("uid"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &callTestEnv{server: server, store: store}
}

func TestCallsRejectsNonParticipant(t *testing.T) {
	env := newCallTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/calls?uid=mallory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestObserverRequiresCapability(t *testing.T) {
	env := newCallTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/observe?uid=alice"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCallInitiateRingsReceiverAndObserver(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	watcher := dialWS(t, env.server, "/ws/observe?uid=watcher")
	readEvent(t, alice)
	readEvent(t, bob)
	readEvent(t, watcher)

	sendEvent(t, alice, map[string]any{
		"type":        "call_initiate",
		"receiver_id": "bob",
		"call_type":   "video",
	})

	// The caller gets a direct confirmation.
	confirmed := readEvent(t, alice)
	require.Equal(t, "call_initiated", confirmed["type"])
	call, ok := confirmed["call"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ringing", call["status"])
	require.Equal(t, "video", call["call_type"])

	// The receiver and the observer room are rung exactly once.
	for _, conn := range []*websocket.Conn{bob, watcher} {
		event := readEvent(t, conn)
		require.Equal(t, "incoming_call", event["type"])
		call, ok := event["call"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "ringing", call["status"])
		caller, ok := event["caller"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "alice", caller["username"])
	}

	// No stray duplicates for the receiver.
	sendEvent(t, bob, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readEvent(t, bob)["type"])
}

func TestCallTransitionFailureReachesOnlyOriginator(t *testing.T) {
	env := newCallTestEnv(t)
	env.store.rejectErr = apperrors.New("INVALID_CALL_STATE", "Call is not ringing", http.StatusConflict)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	readEvent(t, alice)
	readEvent(t, bob)

	sendEvent(t, bob, map[string]any{"type": "call_reject", "call_id": "missing"})

	event := readEvent(t, bob)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Call is not ringing", event["message"])

	// Alice must not have been told anything.
	sendEvent(t, alice, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readEvent(t, alice)["type"])
}

func TestCallAcceptFansOut(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	watcher := dialWS(t, env.server, "/ws/observe?uid=watcher")
	readEvent(t, alice)
	readEvent(t, bob)
	readEvent(t, watcher)

	call, err := env.store.InitiateCall(context.Background(), "conv-1", "alice", "bob", "audio")
	require.NoError(t, err)

	sendEvent(t, bob, map[string]any{"type": "call_accept", "call_id": call.ID})

	for _, conn := range []*websocket.Conn{alice, bob, watcher} {
		event := readEvent(t, conn)
		require.Equal(t, "call_accepted", event["type"])
		payload, ok := event["call"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "accepted", payload["status"])
	}

	// Exactly once per connection, even though the caller sits in both the
	// room and their personal group.
	sendEvent(t, alice, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readEvent(t, alice)["type"])
}

func TestCallAcceptReachesCallerInAnotherRoom(t *testing.T) {
	env := newCallTestEnv(t)

	// Alice's only live signaling connection is attached to a different
	// conversation; the answer must still reach her through her personal
	// call group.
	alice := dialWS(t, env.server, "/ws/calls?uid=alice&conv=conv-2")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	readEvent(t, alice)
	readEvent(t, bob)

	call, err := env.store.InitiateCall(context.Background(), "conv-1", "alice", "bob", "audio")
	require.NoError(t, err)

	sendEvent(t, bob, map[string]any{"type": "call_accept", "call_id": call.ID})

	event := readEvent(t, alice)
	require.Equal(t, "call_accepted", event["type"])
	payload, ok := event["call"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "accepted", payload["status"])
}

func TestCallRejectReachesCaller(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice&conv=conv-2")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	readEvent(t, alice)
	readEvent(t, bob)

	call, err := env.store.InitiateCall(context.Background(), "conv-1", "alice", "bob", "audio")
	require.NoError(t, err)

	sendEvent(t, bob, map[string]any{"type": "call_reject", "call_id": call.ID})

	event := readEvent(t, alice)
	require.Equal(t, "call_rejected", event["type"])
}

func TestCallEndStaysOnConversationGroup(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	readEvent(t, alice)
	readEvent(t, bob)

	call, err := env.store.InitiateCall(context.Background(), "conv-1", "alice", "bob", "audio")
	require.NoError(t, err)
	_, err = env.store.AcceptCall(context.Background(), call.ID, "bob")
	require.NoError(t, err)

	sendEvent(t, alice, map[string]any{"type": "call_end", "call_id": call.ID})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		require.Equal(t, "call_ended", event["type"])
	}
}

func TestWebRTCRelayTargetsSingleUser(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	bob := dialWS(t, env.server, "/ws/calls?uid=bob")
	readEvent(t, alice)
	readEvent(t, bob)

	sendEvent(t, alice, map[string]any{
		"type":           "webrtc_offer",
		"target_user_id": "bob",
		"call_id":        "call-1",
		"signal_data":    map[string]any{"sdp": "offer-blob"},
	})

	event := readEvent(t, bob)
	require.Equal(t, "webrtc_offer", event["type"])
	require.Equal(t, "alice", event["from_user_id"])
	require.Equal(t, "call-1", event["call_id"])
	signal, ok := event["signal_data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "offer-blob", signal["sdp"])

	// The originator hears nothing back.
	sendEvent(t, alice, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readEvent(t, alice)["type"])
}

func TestWebRTCRelayRequiresTarget(t *testing.T) {
	env := newCallTestEnv(t)

	alice := dialWS(t, env.server, "/ws/calls?uid=alice")
	readEvent(t, alice)

	sendEvent(t, alice, map[string]any{"type": "webrtc_answer", "signal_data": map[string]any{}})

	event := readEvent(t, alice)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Signaling relay requires a target user", event["message"])
}

func TestObserverConnectionIsReadOnly(t *testing.T) {
	env := newCallTestEnv(t)

	watcher := dialWS(t, env.server, "/ws/observe?uid=watcher")
	readEvent(t, watcher)

	sendEvent(t, watcher, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readEvent(t, watcher)["type"])

	sendEvent(t, watcher, map[string]any{"type": "call_initiate", "receiver_id": "bob"})
	event := readEvent(t, watcher)
	require.Equal(t, "error", event["type"])
	require.Equal(t, "Observer connections are read-only", event["message"])
}
