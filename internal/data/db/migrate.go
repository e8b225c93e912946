package db

import (
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/domain"
)

func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		// Catalog
		&domain.Course{},
		&domain.Video{},

		// Segment store (machine sources + user notes)
		&domain.Segment{},
		&domain.Note{},

		// Conversation state
		&domain.Conversation{},
		&domain.ConversationMessage{},
	)
}
