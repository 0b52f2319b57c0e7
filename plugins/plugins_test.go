package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/automod/countstore"
	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/pkg/robusthttp"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/plugin"
	"github.com/kantek-org/kantek/reputation"
	"github.com/kantek-org/kantek/store"
	"github.com/kantek-org/kantek/tagstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupChat = int64(-100)
	coordChat = int64(-500)
	logChat   = int64(-42)
	operator  = int64(7)
)

type harness struct {
	env   *plugin.Env
	mock  *platform.MockClient
	store *store.MemStore
	reg   *plugin.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemStore()
	mock := platform.NewMockClient(1)
	counters := countstore.NewMemCountStore()
	coord := automod.DefaultCoordination
	coord.ChatIDs = []int64{coordChat}
	cfg := plugin.Config{
		CommandPrefix:      DefaultCommandPrefix,
		LogChatID:          logChat,
		CoordinationChatID: coordChat,
	}
	b := plugin.NewBuilder()
	require.NoError(t, DefaultPlugins(b, cfg))
	reg := b.Build()
	env := &plugin.Env{
		Client: mock,
		Store:  st,
		Tags:   tagstore.NewManager(st),
		Engine: &automod.Engine{
			Logger:       slog.Default(),
			Store:        st,
			Client:       mock,
			Coordination: coord,
			Counters:     counters,
			Sleep:        func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		},
		Counters: counters,
		Registry: reg,
		Config:   cfg,
	}
	return &harness{env: env, mock: mock, store: st, reg: reg}
}

func cmdEvent(text string) *events.Event {
	return &events.Event{
		ChatID:    groupChat,
		SenderID:  operator,
		MessageID: 90,
		Outgoing:  true,
		Timestamp: time.Now(),
		Message:   &events.Message{Text: text},
	}
}

func (h *harness) run(t *testing.T, handler plugin.Handler, evt *events.Event) error {
	t.Helper()
	return handler(plugin.NewContext(context.Background(), slog.Default(), evt, nil, h.env))
}

func (h *harness) setTag(t *testing.T, name string, value any) {
	t.Helper()
	tags, err := h.env.Tags.Resolve(context.Background(), groupChat)
	require.NoError(t, err)
	require.NoError(t, tags.Set(context.Background(), name, value))
}

func TestParseArgs(t *testing.T) {
	assert := assert.New(t)

	args, err := ParseArgs(`123 456 "spam bot" reason='x y' limit=1 -5`)
	require.NoError(t, err)
	assert.Equal(map[string]string{"reason": "x y", "limit": "1"}, args.Keywords)
	assert.Equal([]string{"123", "456", "spam bot", "-5"}, args.Positional)
	assert.Equal([]int64{123, 456, -5}, args.IDs())
	assert.Equal([]string{"spam bot"}, args.Words())

	args, err = ParseArgs("")
	require.NoError(t, err)
	assert.Empty(args.Positional)
	assert.Empty(args.Keywords)

	_, err = ParseArgs(`reason="never closed`)
	assert.ErrorIs(err, plugin.ErrValidation)

	args, err = ParseArgs(`42 reason="spam; ads" ü`)
	require.NoError(t, err)
	assert.Equal("spam; ads", args.Keywords["reason"])
	assert.Equal([]string{"42", "ü"}, args.Positional)

	args, err = ParseArgs(`7 scam;crypto`)
	require.NoError(t, err)
	assert.Equal([]int64{7}, args.IDs())
	assert.Equal([]string{"scam", ";", "crypto"}, args.Words())

	assert.Equal("1 2", commandArgs(".gban   1 2 "))
	assert.Equal("", commandArgs(".gban"))
	assert.Equal("query", commandArgs(".bl\nquery"))
}

func TestDefaultPluginsMatch(t *testing.T) {
	h := newHarness(t)
	names := func(evt *events.Event) []string {
		var out []string
		for _, m := range h.reg.Match(evt) {
			out = append(out, m.Registration.Name)
		}
		return out
	}
	assert := assert.New(t)

	assert.Equal([]string{"gban", "grenzschutz"}, names(cmdEvent(".gban 1 2")))
	assert.Equal([]string{"gban", "grenzschutz"}, names(cmdEvent(".gban")))
	assert.Equal([]string{"grenzschutz"}, names(cmdEvent(".gbanx")))
	assert.Equal([]string{"ungban", "grenzschutz"}, names(cmdEvent(".ungban 5")))
	assert.Equal([]string{"banlist", "grenzschutz"}, names(cmdEvent(".bl query")))
	assert.Equal([]string{"banlist", "grenzschutz"}, names(cmdEvent(".banlist export")))
	assert.Equal([]string{"help", "grenzschutz"}, names(cmdEvent(".h")))
	assert.Equal([]string{"help", "grenzschutz"}, names(cmdEvent(".help gban")))

	incoming := cmdEvent("this is spam @admin")
	incoming.Outgoing = false
	assert.Equal([]string{"grenzschutz", "reports"}, names(incoming))
	incoming = cmdEvent(".gban 5")
	incoming.Outgoing = false
	assert.Equal([]string{"grenzschutz"}, names(incoming))
}

func TestGBanArgumentForm(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)
	ctx := context.Background()
	h.setTag(t, "gban", "verbose")
	require.NoError(t, h.store.UpsertBanRecord(ctx, 13, "kriminalamt #4"))

	d := plugin.NewDispatcher(h.reg, h.env, plugin.DispatcherConfig{Workers: 2})
	require.NoError(t, d.Dispatch(ctx, cmdEvent(`.gban 11 12 13 "spam links"`)))
	d.Shutdown()

	for _, id := range []int64{11, 12} {
		rec, err := h.store.GetBanRecord(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal("spam links", rec.Reason)
	}
	rec, err := h.store.GetBanRecord(ctx, 13)
	require.NoError(t, err)
	assert.Equal("kriminalamt #4", rec.Reason)

	deletes := h.mock.CallsOf("DeleteMessage")
	require.Len(t, deletes, 1)
	assert.Equal(90, deletes[0].MessageID)
	assert.Len(h.mock.Sent(coordChat), 4)

	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "GBanned Users\n  Reason: spam links\n  IDs: 11, 12")
	assert.Contains(sent[0], "Skipped GBan\n  Reason: Already banned by kriminalamt\n  IDs: 13")
}

func TestGBanReasonKeyword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.run(t, handleGBan, cmdEvent(`.gban reason="mass adding" 21`)))
	rec, err := h.store.GetBanRecord(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, "mass adding", rec.Reason)
	// not verbose in a group without the tag
	assert.Empty(t, h.mock.Sent(groupChat))
}

func TestGBanWithoutIDs(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, handleGBan, cmdEvent(".gban just words"))
	assert.ErrorIs(t, err, plugin.ErrValidation)
	assert.Equal(t, []string{"No user IDs given."}, h.mock.Sent(groupChat))
	n, err := h.store.CountBans(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func replyCommand(text string) *events.Event {
	evt := cmdEvent(text)
	evt.Message.ReplyTo = &events.Reply{MessageID: 33, SenderID: 66}
	return evt
}

func TestGBanReplyForm(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	t.Run("bans locally", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ChatRights[groupChat] = platform.Rights{Admin: true, BanUsers: true, DeleteMessages: true}
		require.NoError(t, h.run(t, handleGBan, replyCommand(".gban")))

		fwd := h.mock.CallsOf("Forward")
		require.Len(t, fwd, 1)
		assert.Equal(platform.Call{Method: "Forward", ChatID: groupChat, MessageID: 33, ToChatID: coordChat}, fwd[0])

		rec, err := h.store.GetBanRecord(ctx, 66)
		require.NoError(t, err)
		assert.Equal(automod.DefaultReason, rec.Reason)

		bans := h.mock.CallsOf("Ban")
		require.Len(t, bans, 1)
		assert.Equal(int64(66), bans[0].UserID)
		assert.Equal(platform.Forever, bans[0].Until)

		var deleted []int
		for _, c := range h.mock.CallsOf("DeleteMessage") {
			deleted = append(deleted, c.MessageID)
		}
		assert.Equal([]int{90, 33}, deleted)
	})

	t.Run("delegates to ban command", func(t *testing.T) {
		h := newHarness(t)
		h.mock.ChatRights[groupChat] = platform.Rights{Admin: true}
		h.setTag(t, "gbancmd", "/ban")
		require.NoError(t, h.run(t, handleGBan, replyCommand(".gban scam bot")))

		assert.Empty(h.mock.CallsOf("Ban"))
		sent := h.mock.CallsOf("SendMessage")
		var local []platform.Call
		for _, c := range sent {
			if c.ChatID == groupChat {
				local = append(local, c)
			}
		}
		require.Len(t, local, 1)
		assert.Equal("/ban scam bot", local[0].Text)
		assert.Equal(33, local[0].MessageID)
	})

	t.Run("without rights only gbans", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.run(t, handleGBan, replyCommand(".gban")))
		rec, err := h.store.GetBanRecord(ctx, 66)
		require.NoError(t, err)
		assert.NotNil(rec)
		assert.Empty(h.mock.CallsOf("Ban"))
		assert.Len(h.mock.CallsOf("DeleteMessage"), 1)
	})
}

func TestUnGBan(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.UpsertBanRecord(ctx, 11, "spam"))

	require.NoError(t, h.run(t, handleUnGBan, cmdEvent(".ungban 11 12")))

	rec, err := h.store.GetBanRecord(ctx, 11)
	require.NoError(t, err)
	assert.Nil(rec)
	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 1)
	assert.True(strings.HasPrefix(sent[0], "Un-GBanned Users\n  IDs: 11"))
	assert.Contains(sent[0], "Reason: Not banned\n  IDs: 12")

	h.mock.Reset()
	evt := replyCommand(".ungban")
	require.NoError(t, h.store.UpsertBanRecord(ctx, 66, "spam"))
	require.NoError(t, h.run(t, handleUnGBan, evt))
	rec, err = h.store.GetBanRecord(ctx, 66)
	require.NoError(t, err)
	assert.Nil(rec)

	h.mock.Reset()
	err = h.run(t, handleUnGBan, cmdEvent(".ungban"))
	assert.ErrorIs(err, plugin.ErrValidation)

	// nothing to unban, nothing to report
	h.mock.Reset()
	require.NoError(t, h.run(t, handleUnGBan, cmdEvent(".ungban 404")))
	assert.Empty(h.mock.Sent(groupChat))
	assert.Empty(h.mock.Sent(coordChat))
}

func TestUsageErrorsSurviveFailedSends(t *testing.T) {
	h := newHarness(t)
	h.mock.FailFn = func(c platform.Call) error {
		if c.Method == "SendMessage" {
			return errors.New("flood wait")
		}
		return nil
	}
	assert.ErrorIs(t, h.run(t, handleBanlist, cmdEvent(".bl frobnicate")), plugin.ErrValidation)
	assert.ErrorIs(t, h.run(t, handleTag, cmdEvent(".tag add")), plugin.ErrValidation)
	assert.ErrorIs(t, h.run(t, handleGBan, cmdEvent(".gban")), plugin.ErrValidation)
}

func TestGrenzschutz(t *testing.T) {
	ctx := context.Background()
	incoming := func() *events.Event {
		evt := cmdEvent("hello")
		evt.Outgoing = false
		evt.SenderID = 66
		return evt
	}
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		h.mock.ChatRights[groupChat] = platform.Rights{Admin: true, BanUsers: true}
		require.NoError(t, h.store.UpsertBanRecord(ctx, 66, "spambot"))
		return h
	}

	t.Run("bans listed user", func(t *testing.T) {
		h := setup(t)
		require.NoError(t, h.run(t, handleGrenzschutz, incoming()))
		bans := h.mock.CallsOf("Ban")
		require.Len(t, bans, 1)
		assert.Equal(t, int64(66), bans[0].UserID)
		logged := h.mock.Sent(logChat)
		require.Len(t, logged, 1)
		assert.Contains(t, logged[0], "SpamWatch Grenzschutz Ban")
		assert.Contains(t, logged[0], "Reason: spambot")
		assert.Contains(t, logged[0], fmt.Sprintf("Chat ID: %d", groupChat))
		assert.Empty(t, h.mock.Sent(groupChat))
	})

	t.Run("verbose announces in chat", func(t *testing.T) {
		h := setup(t)
		h.setTag(t, "grenzschutz", "verbose")
		require.NoError(t, h.run(t, handleGrenzschutz, incoming()))
		assert.Len(t, h.mock.Sent(groupChat), 1)
	})

	t.Run("join is checked", func(t *testing.T) {
		h := setup(t)
		evt := &events.Event{ChatID: groupChat, SenderID: 66, ChatAction: &events.ChatAction{Action: events.ActionUserJoined, UserID: 66}}
		require.NoError(t, h.run(t, handleGrenzschutz, evt))
		assert.Len(t, h.mock.CallsOf("Ban"), 1)
	})

	t.Run("skips", func(t *testing.T) {
		cases := map[string]func(h *harness, evt *events.Event){
			"not banned":    func(h *harness, evt *events.Event) { evt.SenderID = 67 },
			"no ban rights": func(h *harness, evt *events.Event) { h.mock.ChatRights[groupChat] = platform.Rights{Admin: true} },
			"admin": func(h *harness, evt *events.Event) {
				h.mock.Admins[groupChat] = []platform.Entity{{ID: 66, Kind: platform.EntityUser}}
			},
			"private":  func(h *harness, evt *events.Event) { evt.Private = true },
			"excluded": func(h *harness, evt *events.Event) { h.setTag(t, "grenzschutz", "exclude") },
			"polizei":  func(h *harness, evt *events.Event) { h.setTag(t, "polizei", "exclude") },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				h := setup(t)
				evt := incoming()
				mutate(h, evt)
				require.NoError(t, h.run(t, handleGrenzschutz, evt))
				assert.Empty(t, h.mock.CallsOf("Ban"))
				assert.Empty(t, h.mock.Sent(logChat))
			})
		}
	})
}

type fakeReputation struct {
	lk      sync.Mutex
	batches [][]reputation.Ban
	// Served by GET /banlist/{id}
	banned map[int64]string
}

func (f *fakeReputation) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tokens/self", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reputation.Token{ID: 1, Permission: reputation.PermissionAdmin})
	})
	mux.HandleFunc("POST /banlist", func(w http.ResponseWriter, r *http.Request) {
		var bans []reputation.Ban
		require.NoError(t, json.NewDecoder(r.Body).Decode(&bans))
		f.lk.Lock()
		f.batches = append(f.batches, bans)
		f.lk.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /banlist/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		require.NoError(t, err)
		reason, ok := f.banned[id]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(reputation.Ban{ID: id, Reason: reason})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBanlistImportExport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t)

	fake := &fakeReputation{}
	srv := fake.server(t)
	rc := reputation.NewClient(reputation.Config{Host: srv.URL, Token: "secret", RateLimit: 1000, Options: []robusthttp.Option{robusthttp.WithMaxRetries(0)}})
	_, err := rc.Resolve(ctx)
	require.NoError(t, err)
	h.env.Reputation = rc

	var sb strings.Builder
	sb.WriteString("id,name,reason\n")
	for i := 1; i <= 60; i++ {
		fmt.Fprintf(&sb, "%d,user%d,spam\n", i, i)
	}
	sb.WriteString("61,\"a, b\",scam\n")
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(sb.String()), 0o600))

	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl import "+in)))
	n, err := h.store.CountBans(ctx, "")
	require.NoError(t, err)
	assert.Equal(int64(61), n)
	rec, err := h.store.GetBanRecord(ctx, 61)
	require.NoError(t, err)
	assert.Equal("scam", rec.Reason)

	fake.lk.Lock()
	var sizes []int
	for _, b := range fake.batches {
		sizes = append(sizes, len(b))
		for _, ban := range b {
			assert.Equal(b[0].Reason, ban.Reason)
		}
	}
	fake.lk.Unlock()
	assert.ElementsMatch([]int{50, 10, 1}, sizes)

	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 2)
	assert.Equal("Importing bans. This might take a while.", sent[0])
	assert.True(strings.HasPrefix(sent[1], "Imported 61 bans."))
	assert.Len(h.mock.CallsOf("DeleteMessage"), 1)

	out := filepath.Join(dir, "out.csv")
	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl export "+out)))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 62)
	assert.Equal("id,reason", lines[0])
	assert.Equal("1,spam", lines[1])
	assert.Equal("61,scam", lines[61])

	// an export reads back as the same records
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	recs, err := ReadBanCSV(f)
	require.NoError(t, err)
	assert.Len(recs, 61)
}

func TestBanlistImportRejectsBadFile(t *testing.T) {
	h := newHarness(t)
	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("id,reason\nnotanumber,spam\n"), 0o600))

	err := h.run(t, handleBanlist, cmdEvent(".bl import "+bad))
	assert.ErrorIs(t, err, plugin.ErrValidation)
	err = h.run(t, handleBanlist, cmdEvent(".bl import "+filepath.Join(t.TempDir(), "missing.csv")))
	assert.ErrorIs(t, err, plugin.ErrValidation)
	err = h.run(t, handleBanlist, cmdEvent(".bl frobnicate"))
	assert.ErrorIs(t, err, plugin.ErrValidation)
}

func TestBanlistQuery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.UpsertBanRecord(ctx, 1, "spam[gban]"))
	require.NoError(t, h.store.UpsertBanRecord(ctx, 2, "scam"))
	require.NoError(t, h.store.UpsertBanRecord(ctx, 3, "spam adding 5+ members"))

	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl query 2 9")))
	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl query reason=spam")))
	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl query")))
	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl query 9")))

	assert.Equal([]string{
		"Query Results\n  2: scam\n",
		`Bans with reason "spam": 2`,
		"Total bans: 3",
		"None of the users are banned.",
	}, h.mock.Sent(groupChat))
}

func TestBanlistQueryShowsReputationStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.UpsertBanRecord(ctx, 2, "scam"))

	fake := &fakeReputation{banned: map[int64]string{2: "scam", 9: "spambot"}}
	srv := fake.server(t)
	h.env.Reputation = reputation.NewClient(reputation.Config{Host: srv.URL, Token: "secret", RateLimit: 1000, Options: []robusthttp.Option{robusthttp.WithMaxRetries(0)}})

	require.NoError(t, h.run(t, handleBanlist, cmdEvent(".bl query 2 9 10")))
	assert.Equal(t, []string{
		"Query Results\n  2: scam\nSpamWatch\n  2: scam\n  9: spambot\n  10: not banned\n",
	}, h.mock.Sent(groupChat))
}

func TestTagCommand(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag")))
	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag add polizei")))
	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag add gban verbose")))
	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag add limit=3")))
	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag del polizei")))
	require.NoError(t, h.run(t, handleTag, cmdEvent(".tag clear")))

	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 6)
	assert.Equal("No tags set.", sent[0])
	assert.Equal("Tags\n  polizei\n", sent[1])
	assert.Equal("Tags\n  gban: verbose\n  polizei\n", sent[2])
	assert.Equal("Tags\n  gban: verbose\n  limit: 3\n  polizei\n", sent[3])
	assert.Equal("Tags\n  gban: verbose\n  limit: 3\n", sent[4])
	assert.Equal("No tags set.", sent[5])

	assert.ErrorIs(h.run(t, handleTag, cmdEvent(".tag del")), plugin.ErrValidation)
	assert.ErrorIs(h.run(t, handleTag, cmdEvent(".tag frob")), plugin.ErrValidation)
}

func TestLock(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	require.NoError(t, h.run(t, handleLock, cmdEvent(".lock")))
	restricts := h.mock.CallsOf("Restrict")
	require.Len(t, restricts, 1)
	assert.Equal(int64(0), restricts[0].UserID)
	assert.Equal(platform.ChatRights{}, restricts[0].Rights)

	h.mock.FailFn = func(c platform.Call) error {
		if c.Method == "Restrict" {
			return platform.ErrNotModified
		}
		return nil
	}
	require.NoError(t, h.run(t, handleLock, cmdEvent(".lock")))

	h.mock.FailFn = func(c platform.Call) error {
		if c.Method == "Restrict" {
			return platform.ErrPermission
		}
		return nil
	}
	err := h.run(t, handleLock, cmdEvent(".lock"))
	assert.ErrorIs(err, platform.ErrPermission)

	assert.Equal([]string{"Chat locked.", "Chat already locked."}, h.mock.Sent(groupChat))
}

func TestHelp(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t)

	require.NoError(t, h.run(t, handleHelp, cmdEvent(".help")))
	require.NoError(t, h.run(t, handleHelp, cmdEvent(".help gban nope")))
	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 2)

	assert.True(strings.HasPrefix(sent[0], "Available Kantek commands:\n  gban\n  ungban\n  banlist"))
	assert.NotContains(sent[0], "grenzschutz")
	assert.True(strings.HasPrefix(sent[1], "gban\nGlobally ban users."))
	assert.True(strings.HasSuffix(sent[1], "Commands not in Kantek or have help:\n  nope"))
}

func TestReport(t *testing.T) {
	assert := assert.New(t)
	report := func() *events.Event {
		evt := cmdEvent("@admin this is spam")
		evt.Outgoing = false
		evt.SenderID = 55
		evt.Message.ReplyTo = &events.Reply{MessageID: 9, SenderID: 66}
		return evt
	}

	h := newHarness(t)
	h.mock.Entities[groupChat] = platform.Entity{ID: groupChat, Kind: platform.EntityGroup, Name: "Test Group"}
	require.NoError(t, h.run(t, handleReport, report()))
	fwd := h.mock.CallsOf("Forward")
	require.Len(t, fwd, 1)
	assert.Equal(logChat, fwd[0].ToChatID)
	assert.Equal(9, fwd[0].MessageID)
	logged := h.mock.Sent(logChat)
	require.Len(t, logged, 1)
	assert.True(strings.HasPrefix(logged[0], "A user is requesting admin assistance in a group."))
	assert.Contains(logged[0], "Remark: @admin this is spam")

	h = newHarness(t)
	h.setTag(t, "reports", "exclude")
	require.NoError(t, h.run(t, handleReport, report()))
	assert.Empty(h.mock.Calls())

	h = newHarness(t)
	h.env.Config.LogChatID = 0
	require.NoError(t, h.run(t, handleReport, report()))
	assert.Empty(h.mock.Calls())
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, handleGBan, cmdEvent(".gban 1 2")))
	h.mock.Reset()

	require.NoError(t, h.run(t, handleStats, cmdEvent(".stats")))
	sent := h.mock.Sent(groupChat)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Ban list: 2")
	assert.Contains(t, sent[0], "gban: total 2, day 2, hour 2")
	assert.Contains(t, sent[0], "Chats with gbans: 1")
}

func TestHandlerErrorsCarryPlatformCause(t *testing.T) {
	h := newHarness(t)
	h.mock.ChatRights[groupChat] = platform.Rights{Admin: true}
	h.mock.FailFn = func(c platform.Call) error {
		if c.Method == "Ban" {
			return errors.New("flood wait")
		}
		return nil
	}
	err := h.run(t, handleGBan, replyCommand(".gban"))
	assert.ErrorIs(t, err, platform.ErrTransport)
	// the global ban is recorded even when the local one fails
	rec, gerr := h.store.GetBanRecord(context.Background(), 66)
	require.NoError(t, gerr)
	assert.NotNil(t, rec)
}
