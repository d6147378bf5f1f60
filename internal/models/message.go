package models

import "time"

// Message belongs to exactly one conversation. The read flag is flipped at
// most once, by a participant other than the sender; messages are never
// deleted by the hub.
type Message struct {
	BaseModel

	ConversationID string        `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Conversation   *Conversation `gorm:"foreignKey:ConversationID" json:"-"`

	SenderID string `gorm:"type:uuid;index;not null" json:"sender_id"`
	Sender   *User  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	Content  string `gorm:"type:text" json:"content"`
	FileURL  string `gorm:"type:text" json:"file_url,omitempty"`
	FileType string `gorm:"type:varchar(50)" json:"file_type,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// GlobalMessage has the same shape as Message but belongs to the single
// global room instead of a conversation, and carries no read state.
type GlobalMessage struct {
	BaseModel

	SenderID string `gorm:"type:uuid;index;not null" json:"sender_id"`
	Sender   *User  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	Content  string `gorm:"type:text" json:"content"`
	FileURL  string `gorm:"type:text" json:"file_url,omitempty"`
	FileType string `gorm:"type:varchar(50)" json:"file_type,omitempty"`
}
