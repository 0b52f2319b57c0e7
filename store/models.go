package store

import (
	"time"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(&BanRecord{}, &ChatDocument{})
}

// A globally banned account, keyed by its platform identity.
type BanRecord struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false;column:id"`
	Reason    string
	UpdatedAt time.Time
}

func (BanRecord) TableName() string {
	return "banlist"
}

// Per-chat tag configuration. Unnamed tags are boolean flags; named tags carry a value (string, number or bool).
type ChatDocument struct {
	ID        int64          `gorm:"primaryKey;autoIncrement:false;column:id"`
	Tags      []string       `gorm:"serializer:json"`
	NamedTags map[string]any `gorm:"serializer:json"`
}

func (ChatDocument) TableName() string {
	return "chats"
}

func emptyChat(chatID int64) ChatDocument {
	return ChatDocument{
		ID:        chatID,
		Tags:      []string{},
		NamedTags: map[string]any{},
	}
}

// normalize fills nil collections so callers never see "null" tags.
func (d *ChatDocument) normalize() {
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.NamedTags == nil {
		d.NamedTags = map[string]any{}
	}
}
