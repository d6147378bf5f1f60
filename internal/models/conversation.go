package models

// Conversation is a private chat between two or more participants. The
// participant set is fixed at creation; two-party uniqueness is enforced by
// the chat service before insert.
type Conversation struct {
	BaseModel

	Participants []User `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`

	// LastMessageID points at the most recent message so conversation lists
	// can render without loading message history.
	LastMessageID *string  `gorm:"type:uuid" json:"last_message_id"`
	LastMessage   *Message `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
}

// HasParticipant reports whether the user is part of the preloaded
// participant set.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
