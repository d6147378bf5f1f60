package realtime

// Group name builders. A group is a named broadcast channel; connections join
// zero or more groups atomically on admit and leave all of them on dismiss.
const (
	// GlobalRoom is the single flat chat room every authenticated user may join.
	GlobalRoom = "global"

	// ObserverCallRoom is the call-signaling observer group. Admission
	// requires the observer capability; it bypasses per-conversation
	// participant checks and exists for dashboard-style monitoring only.
	ObserverCallRoom = "call:global"
)

// ChatGroup names the broadcast group for one conversation.
func ChatGroup(conversationID string) string {
	return "chat:" + conversationID
}

// UserGroup names a user's personal group, reaching every one of their open
// connections regardless of which conversation they are viewing.
func UserGroup(userID string) string {
	return "user:" + userID
}

// CallGroup names the signaling group for calls within one conversation.
func CallGroup(conversationID string) string {
	return "call:" + conversationID
}

// UserCallGroup names a user's personal call-listener group, the target for
// incoming-call notifications and directed signaling relay.
func UserCallGroup(userID string) string {
	return "user_call:" + userID
}
