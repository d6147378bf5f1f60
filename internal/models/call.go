package models

import "time"

// CallStatus enumerates the call state machine:
//
//	initiated → ringing → {accepted → ended} | rejected | missed | failed
//
// Terminal states are immutable.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAccepted  CallStatus = "accepted"
	CallRejected  CallStatus = "rejected"
	CallMissed    CallStatus = "missed"
	CallFailed    CallStatus = "failed"
	CallEnded     CallStatus = "ended"
)

// CallType distinguishes audio-only from video calls.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Terminal reports whether the status admits no further transitions.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallRejected, CallMissed, CallFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving to the
// target status. Ending or failing is allowed from any non-terminal state.
func (s CallStatus) CanTransition(to CallStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case CallRinging:
		return s == CallInitiated
	case CallAccepted, CallRejected, CallMissed:
		return s == CallRinging
	case CallEnded, CallFailed:
		return true
	}
	return false
}

// ValidCallType reports whether the supplied value names a known call type.
func ValidCallType(value string) bool {
	switch CallType(value) {
	case CallTypeAudio, CallTypeVideo:
		return true
	}
	return false
}

// Call records one audio/video call within a conversation. Signaling payloads
// are relayed, never stored; only lifecycle state is persisted.
type Call struct {
	BaseModel

	ConversationID string        `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Conversation   *Conversation `gorm:"foreignKey:ConversationID" json:"-"`

	CallerID   string `gorm:"type:uuid;index;not null" json:"caller_id"`
	Caller     *User  `gorm:"foreignKey:CallerID" json:"caller,omitempty"`
	ReceiverID string `gorm:"type:uuid;index;not null" json:"receiver_id"`
	Receiver   *User  `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`

	CallType CallType   `gorm:"type:varchar(16);not null" json:"call_type"`
	Status   CallStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// Duration is the answered wall-clock span in seconds, zero when the
	// call was never answered.
	Duration int `gorm:"default:0" json:"duration"`
}
