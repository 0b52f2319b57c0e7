package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/automod/countstore"
	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/reputation"
	"github.com/kantek-org/kantek/store"
	"github.com/kantek-org/kantek/tagstore"
)

// Malformed command arguments. Handlers report these to the requester before returning them; nothing has been mutated.
var ErrValidation = errors.New("invalid command arguments")

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type Config struct {
	// Regular expression prefix of operator commands, eg `\.` for ".gban".
	CommandPrefix string
	// Chat where moderation actions are logged. Zero disables.
	LogChatID int64
	// Primary coordination channel, where gbanned messages are forwarded as evidence. Zero disables.
	CoordinationChatID int64
}

// Everything a handler may use, passed explicitly rather than through globals. Shared by all handlers; its fields are not modified after startup.
type Env struct {
	Client     platform.Client
	Store      store.Store
	Tags       *tagstore.Manager
	Engine     *automod.Engine
	Counters   countstore.CountStore
	Reputation *reputation.Client
	Registry   *Registry
	Config     Config
}

// Per-invocation state handed to a handler.
type Context struct {
	Ctx    context.Context
	Logger *slog.Logger
	Event  *events.Event
	// Pattern submatches; Groups[0] is the matched text.
	Groups []string
	Env    *Env

	tagsOnce sync.Once
	tags     *tagstore.Tags
	tagsErr  error
}

func NewContext(ctx context.Context, logger *slog.Logger, evt *events.Event, groups []string, env *Env) *Context {
	return &Context{
		Ctx:    ctx,
		Logger: logger,
		Event:  evt,
		Groups: groups,
		Env:    env,
	}
}

// Tags of the event's chat, resolved once per invocation.
func (c *Context) Tags() (*tagstore.Tags, error) {
	c.tagsOnce.Do(func() {
		c.tags, c.tagsErr = c.Env.Tags.Resolve(c.Ctx, c.Event.ChatID)
	})
	return c.tags, c.tagsErr
}

// Sends text to the event's chat, as a reply to the event's message.
func (c *Context) Respond(text string) (int, error) {
	return c.Env.Client.SendMessage(c.Ctx, c.Event.ChatID, text, &platform.SendOptions{
		ReplyTo:        c.Event.MessageID,
		DisablePreview: true,
	})
}

// Responds where no caller needs the result. A failed send is logged.
func (c *Context) Notify(text string) {
	if _, err := c.Respond(text); err != nil {
		c.Logger.Warn("failed to send response", "err", err)
	}
}

// Posts to the log chat, if one is configured.
func (c *Context) LogAction(text string) error {
	if c.Env.Config.LogChatID == 0 {
		return nil
	}
	_, err := c.Env.Client.SendMessage(c.Ctx, c.Env.Config.LogChatID, text, &platform.SendOptions{DisablePreview: true})
	return err
}
