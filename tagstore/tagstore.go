// Per-chat configuration tags.
//
// A chat's tags are either unnamed (boolean flags, present or absent) or named (carrying a value). The document for a chat is created on first access, so resolving a chat never reports "not found".
package tagstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/kantek-org/kantek/store"

	"github.com/puzpuzpuz/xsync/v4"
)

// Hands out tag accessors, and serializes mutations of the same chat.
type Manager struct {
	store store.ChatStore
	locks *xsync.Map[int64, *sync.Mutex]
}

func NewManager(s store.ChatStore) *Manager {
	return &Manager{
		store: s,
		locks: xsync.NewMap[int64, *sync.Mutex](),
	}
}

func (m *Manager) lockFor(chatID int64) *sync.Mutex {
	lk, _ := m.locks.LoadOrCompute(chatID, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	return lk
}

// Returns the tags of a chat, creating an empty document on first access.
func (m *Manager) Resolve(ctx context.Context, chatID int64) (*Tags, error) {
	doc, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("resolving tags for chat %d: %w", chatID, err)
	}
	return &Tags{
		ChatID:  chatID,
		mgr:     m,
		unnamed: doc.Tags,
		named:   doc.NamedTags,
	}, nil
}

// Snapshot of a chat's tags. Reads are served from the snapshot; every mutation re-reads the stored document under the chat's lock, applies the change, persists it, and refreshes the snapshot before returning.
type Tags struct {
	ChatID int64

	mgr *Manager

	lk      sync.RWMutex
	unnamed []string
	named   map[string]any
}

// Returns the value of a named tag; true for an unnamed tag; (nil, false) if the chat does not have the tag.
func (t *Tags) Get(name string) (any, bool) {
	t.lk.RLock()
	defer t.lk.RUnlock()
	if v, ok := t.named[name]; ok {
		return v, true
	}
	if slices.Contains(t.unnamed, name) {
		return true, true
	}
	return nil, false
}

// Returns a named tag's value formatted as a string, "true" for an unnamed tag, or empty if the tag is not set.
func (t *Tags) String(name string) string {
	v, ok := t.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Without a value (nil), adds an unnamed tag. With a value, stores or overwrites a named tag.
func (t *Tags) Set(ctx context.Context, name string, value any) error {
	return t.mutate(ctx, func(unnamed []string, named map[string]any) ([]string, map[string]any) {
		if value == nil {
			if !slices.Contains(unnamed, name) {
				unnamed = append(unnamed, name)
			}
			return unnamed, named
		}
		named[name] = value
		return unnamed, named
	})
}

// Removes the tag from whichever set contains it. No-op if the chat does not have the tag.
func (t *Tags) Delete(ctx context.Context, name string) error {
	return t.mutate(ctx, func(unnamed []string, named map[string]any) ([]string, map[string]any) {
		unnamed = slices.DeleteFunc(unnamed, func(s string) bool { return s == name })
		delete(named, name)
		return unnamed, named
	})
}

// Removes all tags of the chat.
func (t *Tags) Clear(ctx context.Context) error {
	return t.mutate(ctx, func(unnamed []string, named map[string]any) ([]string, map[string]any) {
		return []string{}, map[string]any{}
	})
}

// Unnamed tags in insertion order.
func (t *Tags) Unnamed() []string {
	t.lk.RLock()
	defer t.lk.RUnlock()
	return slices.Clone(t.unnamed)
}

// Named tags, as a copy.
func (t *Tags) Named() map[string]any {
	t.lk.RLock()
	defer t.lk.RUnlock()
	return maps.Clone(t.named)
}

// All tag names, sorted.
func (t *Tags) Names() []string {
	t.lk.RLock()
	defer t.lk.RUnlock()
	names := slices.Clone(t.unnamed)
	for k := range t.named {
		names = append(names, k)
	}
	sort.Strings(names)
	return slices.Compact(names)
}

func (t *Tags) mutate(ctx context.Context, fn func([]string, map[string]any) ([]string, map[string]any)) error {
	lk := t.mgr.lockFor(t.ChatID)
	lk.Lock()
	defer lk.Unlock()

	doc, err := t.mgr.store.GetOrCreateChat(ctx, t.ChatID)
	if err != nil {
		return fmt.Errorf("reading tags for chat %d: %w", t.ChatID, err)
	}
	unnamed, named := fn(doc.Tags, doc.NamedTags)
	if err := t.mgr.store.UpdateChatTags(ctx, t.ChatID, unnamed, named); err != nil {
		return fmt.Errorf("saving tags for chat %d: %w", t.ChatID, err)
	}

	t.lk.Lock()
	t.unnamed = unnamed
	t.named = named
	t.lk.Unlock()
	return nil
}
