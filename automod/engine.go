package automod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kantek-org/kantek/automod/cachestore"
	"github.com/kantek-org/kantek/automod/countstore"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/reputation"
	"github.com/kantek-org/kantek/store"

	"github.com/valyala/fasttemplate"
)

const (
	DefaultChunkSize         = 10
	DefaultChunkPause        = 10 * time.Second
	DefaultPostDelay         = 500 * time.Millisecond
	DefaultProgressThreshold = 10
)

const (
	CounterGBan        = "gban"
	CounterUnGBan      = "ungban"
	CounterGBanSkipped = "gban-skipped"
	CounterGBanChats   = "gban-chats"
	CounterAll         = "all"
)

var (
	ErrNoIdentities = errors.New("no identities to process")
	// Wraps failures talking to the reputation service. These are logged, never returned.
	ErrExternalSync = errors.New("reputation service sync failed")
)

// Channels where ban commands are relayed to cooperating bots, and the messages posted there. Templates may contain {uid} and {reason} placeholders; each template is posted as a separate message.
type Coordination struct {
	ChatIDs         []int64
	GBanTemplates   []string
	UnGBanTemplates []string
}

var DefaultCoordination = Coordination{
	GBanTemplates:   []string{"{uid}", "/gban {uid} {reason}"},
	UnGBanTemplates: []string{"{uid}", "/ungban {uid}"},
}

// Unknown placeholders are left as written.
func renderTemplate(tmpl string, id int64, reason string) string {
	return fasttemplate.ExecuteStringStd(tmpl, "{", "}", map[string]any{
		"uid":    strconv.FormatInt(id, 10),
		"reason": reason,
	})
}

// Runs global ban and unban invocations: precedence resolution, ban list persistence, paced relay to the coordination channels, and optional mirroring to the reputation service.
//
// Store, Client and Logger must be set. The tuning fields fall back to the Default* constants when zero.
type Engine struct {
	Logger *slog.Logger
	Store  store.BanStore
	// Used for progress messages in the requesting chat.
	Client platform.Client
	// Delegated identity which posts to the coordination channels. Falls back to Client.
	Sender       platform.Client
	Coordination Coordination
	// Optional
	Reputation *reputation.Client
	// Optional cache in front of Store for LookupBan
	Cache cachestore.CacheStore
	// Optional
	Counters countstore.CountStore

	ChunkSize         int
	ChunkPause        time.Duration
	PostDelay         time.Duration
	ProgressThreshold int
	// Pacing hook; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (eng *Engine) chunkSize() int {
	if eng.ChunkSize > 0 {
		return eng.ChunkSize
	}
	return DefaultChunkSize
}

func (eng *Engine) chunkPause() time.Duration {
	if eng.ChunkPause > 0 {
		return eng.ChunkPause
	}
	return DefaultChunkPause
}

func (eng *Engine) postDelay() time.Duration {
	if eng.PostDelay > 0 {
		return eng.PostDelay
	}
	return DefaultPostDelay
}

func (eng *Engine) progressThreshold() int {
	if eng.ProgressThreshold > 0 {
		return eng.ProgressThreshold
	}
	return DefaultProgressThreshold
}

func (eng *Engine) sender() platform.Client {
	if eng.Sender != nil {
		return eng.Sender
	}
	return eng.Client
}

func (eng *Engine) sleep(ctx context.Context, d time.Duration) error {
	if eng.Sleep != nil {
		return eng.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Drops invalid (zero) and repeated identities, keeping first-seen order.
func normalizeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Processes ids in chunks: one(id) for each identity followed by the per-post delay, and the chunk pause between chunks (never after the last). When progress is requested, a progress message in chatID is created up front, edited between chunks, and deleted at the end.
func (eng *Engine) runChunked(ctx context.Context, logger *slog.Logger, verb string, ids []int64, progress bool, chatID int64, rep *Report, one func(context.Context, int64)) {
	total := len(ids)
	size := eng.chunkSize()
	pause := eng.chunkPause()

	var progressID int
	if progress && total > eng.progressThreshold() && eng.Client != nil {
		msgID, err := eng.Client.SendMessage(ctx, chatID, fmt.Sprintf("Processing %d User IDs", total), nil)
		if err != nil {
			logger.Warn("failed to send progress message", "err", err)
		} else {
			progressID = msgID
		}
	}

	for start := 0; start < total; start += size {
		end := min(start+size, total)
		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				rep.addSkipped(SkipCancelled, id)
				continue
			}
			one(ctx, id)
			_ = eng.sleep(ctx, eng.postDelay())
		}
		left := total - end
		if left == 0 {
			break
		}
		if progressID != 0 {
			text := fmt.Sprintf("Sleeping for %d seconds after %s %d Users. %d Users left.", int(pause.Seconds()), verb, end-start, left)
			if err := eng.Client.EditMessage(ctx, chatID, progressID, text); err != nil {
				logger.Warn("failed to update progress message", "err", err)
			}
		}
		_ = eng.sleep(ctx, pause)
	}

	if progressID != 0 {
		if err := eng.Client.DeleteMessage(ctx, chatID, progressID); err != nil {
			logger.Warn("failed to delete progress message", "err", err)
		}
	}
}

// Posts the templates for one identity to every coordination channel. Returns false if any post failed; posting for the identity stops at the first failure.
func (eng *Engine) propagate(ctx context.Context, logger *slog.Logger, op string, templates []string, id int64, reason string) bool {
	sender := eng.sender()
	for _, chatID := range eng.Coordination.ChatIDs {
		for _, tmpl := range templates {
			text := renderTemplate(tmpl, id, reason)
			if _, err := sender.SendMessage(ctx, chatID, text, &platform.SendOptions{DisablePreview: true}); err != nil {
				coordinationPosts.WithLabelValues(op, "error").Inc()
				logger.Error("failed to post to coordination channel", "chat", chatID, "err", err)
				return false
			}
			coordinationPosts.WithLabelValues(op, "ok").Inc()
		}
	}
	return true
}

func (eng *Engine) increment(ctx context.Context, name string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, name, CounterAll); err != nil {
		eng.Logger.Warn("failed to increment counter", "counter", name, "err", err)
	}
}

func banCacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Returns the ban record for an identity, or nil if it is not banned. Served from Cache when configured; negative results are cached too.
func (eng *Engine) LookupBan(ctx context.Context, id int64) (*store.BanRecord, error) {
	if eng.Cache != nil {
		val, err := eng.Cache.Get(ctx, "ban", banCacheKey(id))
		if err != nil {
			eng.Logger.Warn("ban cache read failed", "uid", id, "err", err)
		} else if val != "" {
			var rec *store.BanRecord
			if err := json.Unmarshal([]byte(val), &rec); err == nil {
				banLookups.WithLabelValues("hit").Inc()
				return rec, nil
			}
		}
	}
	banLookups.WithLabelValues("miss").Inc()

	rec, err := eng.Store.GetBanRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if eng.Cache != nil {
		b, err := json.Marshal(rec)
		if err == nil {
			err = eng.Cache.Set(ctx, "ban", banCacheKey(id), string(b))
		}
		if err != nil {
			eng.Logger.Warn("ban cache write failed", "uid", id, "err", err)
		}
	}
	return rec, nil
}

func (eng *Engine) purgeBanCache(ctx context.Context, id int64) {
	if eng.Cache == nil {
		return
	}
	if err := eng.Cache.Purge(ctx, "ban", banCacheKey(id)); err != nil {
		eng.Logger.Warn("ban cache purge failed", "uid", id, "err", err)
	}
}

// Drops the cached lookup result for an identity. Call after writing ban records outside GBan and UnGBan.
func (eng *Engine) ForgetBan(ctx context.Context, id int64) {
	eng.purgeBanCache(ctx, id)
}
