package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User describes a platform account. Account management itself lives in the
// wider platform; the hub only reads display attributes and credentials.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	ProfileName string `json:"profile_name"`
	Avatar      string `json:"avatar"`

	// Profile holds free-form profile attributes owned by the accounts module.
	Profile datatypes.JSON `json:"profile,omitempty"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// IsObserver grants access to the call-signaling observer room. It is a
	// deliberately narrow capability for dashboard-style monitoring accounts
	// and is never set for regular users.
	IsObserver bool `gorm:"default:false" json:"is_observer"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// DisplayName returns the public-facing name for event enrichment.
func (u *User) DisplayName() string {
	if u.ProfileName != "" {
		return u.ProfileName
	}
	return u.Username
}
