// Persistent state: the global ban list and per-chat tag documents.
//
// Includes an interface and implementations using gorm (sqlite or postgres) and in-process memory.
package store

import (
	"context"
	"errors"
)

// Wrapped into every error returned by a store implementation.
var ErrStore = errors.New("store operation failed")

type BanStore interface {
	// Returns (nil, nil) if the identity has no record.
	GetBanRecord(ctx context.Context, id int64) (*BanRecord, error)
	// Atomic insert-or-update of a single record.
	UpsertBanRecord(ctx context.Context, id int64, reason string) error
	// Returns whether a record existed.
	DeleteBanRecord(ctx context.Context, id int64) (bool, error)
	QueryBans(ctx context.Context, ids []int64) ([]BanRecord, error)
	// Counts records whose reason contains the substring; empty substring counts all records.
	CountBans(ctx context.Context, reasonContains string) (int64, error)
	ImportBans(ctx context.Context, recs []BanRecord) error
	// Calls fn for every record, in id order.
	AllBans(ctx context.Context, fn func(BanRecord) error) error
}

type ChatStore interface {
	// Returns the chat's document, creating an empty one if none exists yet.
	GetOrCreateChat(ctx context.Context, chatID int64) (*ChatDocument, error)
	UpdateChatTags(ctx context.Context, chatID int64, tags []string, namedTags map[string]any) error
}

type Store interface {
	BanStore
	ChatStore
}
