package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// In-process store, for tests and local development.
type MemStore struct {
	lk     sync.Mutex
	bans   map[int64]BanRecord
	chats  map[int64]ChatDocument
	failOn map[int64]error
	writes int
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		bans:   make(map[int64]BanRecord),
		chats:  make(map[int64]ChatDocument),
		failOn: make(map[int64]error),
	}
}

// Makes ban record writes for the given identity fail with err (wrapped with ErrStore). A nil err clears the failure.
func (s *MemStore) FailWrites(id int64, err error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if err == nil {
		delete(s.failOn, id)
		return
	}
	s.failOn[id] = err
}

// Number of successful mutations of any kind.
func (s *MemStore) WriteCount() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.writes
}

func copyChat(d ChatDocument) *ChatDocument {
	out := ChatDocument{
		ID:        d.ID,
		Tags:      slices.Clone(d.Tags),
		NamedTags: maps.Clone(d.NamedTags),
	}
	out.normalize()
	return &out
}

func (s *MemStore) GetOrCreateChat(ctx context.Context, chatID int64) (*ChatDocument, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	doc, ok := s.chats[chatID]
	if !ok {
		doc = emptyChat(chatID)
		s.chats[chatID] = doc
		s.writes++
	}
	return copyChat(doc), nil
}

func (s *MemStore) UpdateChatTags(ctx context.Context, chatID int64, tags []string, namedTags map[string]any) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	doc := ChatDocument{ID: chatID, Tags: slices.Clone(tags), NamedTags: maps.Clone(namedTags)}
	doc.normalize()
	s.chats[chatID] = doc
	s.writes++
	return nil
}

func (s *MemStore) GetBanRecord(ctx context.Context, id int64) (*BanRecord, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec, ok := s.bans[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemStore) UpsertBanRecord(ctx context.Context, id int64, reason string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if err, ok := s.failOn[id]; ok {
		return fmt.Errorf("%w: upserting ban record %d: %w", ErrStore, id, err)
	}
	s.bans[id] = BanRecord{ID: id, Reason: reason, UpdatedAt: time.Now()}
	s.writes++
	return nil
}

func (s *MemStore) DeleteBanRecord(ctx context.Context, id int64) (bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if err, ok := s.failOn[id]; ok {
		return false, fmt.Errorf("%w: deleting ban record %d: %w", ErrStore, id, err)
	}
	if _, ok := s.bans[id]; !ok {
		return false, nil
	}
	delete(s.bans, id)
	s.writes++
	return true, nil
}

func (s *MemStore) QueryBans(ctx context.Context, ids []int64) ([]BanRecord, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []BanRecord{}
	for _, id := range ids {
		if rec, ok := s.bans[id]; ok {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b BanRecord) int { return cmp.Compare(a.ID, b.ID) })
	return slices.CompactFunc(out, func(a, b BanRecord) bool { return a.ID == b.ID }), nil
}

func (s *MemStore) CountBans(ctx context.Context, reasonContains string) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var n int64
	for _, rec := range s.bans {
		if strings.Contains(rec.Reason, reasonContains) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) ImportBans(ctx context.Context, recs []BanRecord) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	now := time.Now()
	for _, rec := range recs {
		rec.UpdatedAt = now
		s.bans[rec.ID] = rec
	}
	s.writes++
	return nil
}

func (s *MemStore) AllBans(ctx context.Context, fn func(BanRecord) error) error {
	s.lk.Lock()
	ids := slices.Sorted(maps.Keys(s.bans))
	recs := make([]BanRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, s.bans[id])
	}
	s.lk.Unlock()

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
