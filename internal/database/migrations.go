package database

import (
	"gorm.io/gorm"

	"github.com/openwave-labs/openwave/internal/models"
)

// AutoMigrate creates or updates the database schema for all hub models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.GlobalMessage{},
		&models.Call{},
		&models.CacheEntry{},
	)
}
