package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store backed by a gorm database handle. Each call is its own statement (or transaction) on the connection pool; there is no process-wide lock.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetOrCreateChat(ctx context.Context, chatID int64) (*ChatDocument, error) {
	empty := emptyChat(chatID)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&empty).Error; err != nil {
		return nil, fmt.Errorf("%w: creating chat %d: %w", ErrStore, chatID, err)
	}
	var doc ChatDocument
	if err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&doc).Error; err != nil {
		return nil, fmt.Errorf("%w: reading chat %d: %w", ErrStore, chatID, err)
	}
	doc.normalize()
	return &doc, nil
}

func (s *GormStore) UpdateChatTags(ctx context.Context, chatID int64, tags []string, namedTags map[string]any) error {
	doc := ChatDocument{ID: chatID, Tags: tags, NamedTags: namedTags}
	doc.normalize()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tags", "named_tags"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("%w: updating tags of chat %d: %w", ErrStore, chatID, err)
	}
	return nil
}

func (s *GormStore) GetBanRecord(ctx context.Context, id int64) (*BanRecord, error) {
	var rec BanRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading ban record %d: %w", ErrStore, id, err)
	}
	return &rec, nil
}

func (s *GormStore) UpsertBanRecord(ctx context.Context, id int64, reason string) error {
	rec := BanRecord{ID: id, Reason: reason}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: upserting ban record %d: %w", ErrStore, id, err)
	}
	return nil
}

func (s *GormStore) DeleteBanRecord(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&BanRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("%w: deleting ban record %d: %w", ErrStore, id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) QueryBans(ctx context.Context, ids []int64) ([]BanRecord, error) {
	if len(ids) == 0 {
		return []BanRecord{}, nil
	}
	var recs []BanRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: querying ban records: %w", ErrStore, err)
	}
	return recs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *GormStore) CountBans(ctx context.Context, reasonContains string) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&BanRecord{})
	if reasonContains != "" {
		q = q.Where(`reason LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(reasonContains)+"%")
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: counting ban records: %w", ErrStore, err)
	}
	return count, nil
}

func (s *GormStore) ImportBans(ctx context.Context, recs []BanRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
		}).CreateInBatches(recs, 100).Error
	})
	if err != nil {
		return fmt.Errorf("%w: importing %d ban records: %w", ErrStore, len(recs), err)
	}
	return nil
}

func (s *GormStore) AllBans(ctx context.Context, fn func(BanRecord) error) error {
	var batch []BanRecord
	res := s.db.WithContext(ctx).Order("id").FindInBatches(&batch, 500, func(tx *gorm.DB, n int) error {
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("%w: listing ban records: %w", ErrStore, res.Error)
	}
	return nil
}
