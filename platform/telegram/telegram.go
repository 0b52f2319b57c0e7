// Event Source and Client on top of the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/platform"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
)

type Config struct {
	Token string
	// Messages sent by these accounts are treated as the operator's own (outgoing) messages.
	OperatorIDs  []int64
	PollTimeout  time.Duration
	Logger       *slog.Logger
	APIServerURL string
}

type Bot struct {
	api         *telego.Bot
	operatorIDs []int64
	pollTimeout time.Duration
	logger      *slog.Logger
}

var (
	_ platform.Client = (*Bot)(nil)
	_ platform.Source = (*Bot)(nil)
)

func New(cfg Config) (*Bot, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "telegram")

	opts := []telego.BotOption{telego.WithLogger(slogAdapter{logger})}
	if cfg.APIServerURL != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServerURL))
	}
	api, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	timeout := cfg.PollTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Bot{
		api:         api,
		operatorIDs: cfg.OperatorIDs,
		pollTimeout: timeout,
		logger:      logger,
	}, nil
}

type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// Long-polls for updates and hands each converted event to deliver. Updates are received in order, so per-chat ordering is preserved as long as deliver does not reorder.
func (b *Bot) Run(ctx context.Context, deliver func(*events.Event)) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        int(b.pollTimeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("%w: starting long polling: %w", platform.ErrTransport, err)
	}
	b.logger.Info("receiving updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			for _, evt := range b.convert(upd) {
				deliver(evt)
			}
		}
	}
}

func (b *Bot) convert(upd telego.Update) []*events.Event {
	msg := upd.Message
	if msg == nil {
		return nil
	}
	base := events.Event{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Private:   msg.Chat.Type == telego.ChatTypePrivate,
		Timestamp: time.Unix(msg.Date, 0).UTC(),
	}
	if msg.From != nil {
		base.SenderID = msg.From.ID
		base.Outgoing = slices.Contains(b.operatorIDs, msg.From.ID)
	}

	switch {
	case len(msg.NewChatMembers) > 0:
		out := make([]*events.Event, 0, len(msg.NewChatMembers))
		for _, u := range msg.NewChatMembers {
			evt := base
			action := events.ActionUserJoined
			if msg.From != nil && msg.From.ID != u.ID {
				action = events.ActionUserAdded
			}
			evt.ChatAction = &events.ChatAction{Action: action, UserID: u.ID}
			out = append(out, &evt)
		}
		return out
	case msg.LeftChatMember != nil:
		evt := base
		evt.ChatAction = &events.ChatAction{Action: events.ActionUserLeft, UserID: msg.LeftChatMember.ID}
		return []*events.Event{&evt}
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	evt := base
	evt.Message = &events.Message{Text: text}
	if r := msg.ReplyToMessage; r != nil {
		evt.Message.ReplyTo = &events.Reply{MessageID: r.MessageID}
		if r.From != nil {
			evt.Message.ReplyTo.SenderID = r.From.ID
		}
	}
	return []*events.Event{&evt}
}

// Maps a Bot API failure onto the platform error kinds.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		if apiErr.ErrorCode == 403 || strings.Contains(desc, "not enough rights") || strings.Contains(desc, "administrator") {
			return fmt.Errorf("%w: %s: %w", platform.ErrPermission, op, err)
		}
		if strings.Contains(desc, "not modified") || strings.Contains(desc, "not_modified") {
			return fmt.Errorf("%w: %s: %w", platform.ErrNotModified, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", platform.ErrTransport, op, err)
}

func (b *Bot) Self(ctx context.Context) (*platform.Entity, error) {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return nil, wrapErr("get me", err)
	}
	return userEntity(me), nil
}

func userEntity(u *telego.User) *platform.Entity {
	e := &platform.Entity{
		ID:       u.ID,
		Kind:     platform.EntityUser,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username: u.Username,
	}
	if u.IsBot {
		e.Kind = platform.EntityBot
	}
	return e
}

func (b *Bot) SelfRights(ctx context.Context, chatID int64) (*platform.Rights, error) {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return nil, wrapErr("get me", err)
	}
	member, err := b.api.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: me.ID,
	})
	if err != nil {
		return nil, wrapErr("get chat member", err)
	}
	switch m := member.(type) {
	case *telego.ChatMemberOwner:
		return &platform.Rights{Admin: true, BanUsers: true, DeleteMessages: true}, nil
	case *telego.ChatMemberAdministrator:
		return &platform.Rights{
			Admin:          true,
			BanUsers:       m.CanRestrictMembers,
			DeleteMessages: m.CanDeleteMessages,
		}, nil
	}
	return &platform.Rights{}, nil
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts *platform.SendOptions) (int, error) {
	params := &telego.SendMessageParams{
		ChatID: tu.ID(chatID),
		Text:   text,
	}
	if opts != nil {
		if opts.ReplyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: opts.ReplyTo, AllowSendingWithoutReply: true}
		}
		if opts.DisablePreview {
			params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
		}
	}
	msg, err := b.api.SendMessage(ctx, params)
	if err != nil {
		return 0, wrapErr("send message", err)
	}
	return msg.MessageID, nil
}

func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := b.api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      text,
	})
	return wrapErr("edit message", err)
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := b.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	return wrapErr("delete message", err)
}

func (b *Bot) Forward(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error) {
	msg, err := b.api.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(toChatID),
		FromChatID: tu.ID(fromChatID),
		MessageID:  messageID,
	})
	if err != nil {
		return 0, wrapErr("forward message", err)
	}
	return msg.MessageID, nil
}

func ptr[T any](v T) *T {
	return &v
}

func permissions(r platform.ChatRights) telego.ChatPermissions {
	return telego.ChatPermissions{
		CanSendMessages:       ptr(r.SendMessages),
		CanSendAudios:         ptr(r.SendMedia),
		CanSendDocuments:      ptr(r.SendMedia),
		CanSendPhotos:         ptr(r.SendMedia),
		CanSendVideos:         ptr(r.SendMedia),
		CanSendVideoNotes:     ptr(r.SendMedia),
		CanSendVoiceNotes:     ptr(r.SendMedia),
		CanSendPolls:          ptr(r.SendOther),
		CanSendOtherMessages:  ptr(r.SendOther),
		CanAddWebPagePreviews: ptr(r.AddPreviews),
		CanChangeInfo:         ptr(r.ChangeInfo),
		CanInviteUsers:        ptr(r.InviteUsers),
		CanPinMessages:        ptr(r.PinMessages),
	}
}

func (b *Bot) Restrict(ctx context.Context, chatID, userID int64, rights platform.ChatRights, until time.Time) error {
	if userID == 0 {
		err := b.api.SetChatPermissions(ctx, &telego.SetChatPermissionsParams{
			ChatID:      tu.ID(chatID),
			Permissions: permissions(rights),
		})
		return wrapErr("set chat permissions", err)
	}
	params := &telego.RestrictChatMemberParams{
		ChatID:      tu.ID(chatID),
		UserID:      userID,
		Permissions: permissions(rights),
	}
	if !until.IsZero() {
		params.UntilDate = until.Unix()
	}
	return wrapErr("restrict member", b.api.RestrictChatMember(ctx, params))
}

func (b *Bot) Ban(ctx context.Context, chatID, userID int64, until time.Time) error {
	params := &telego.BanChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	}
	if !until.IsZero() {
		params.UntilDate = until.Unix()
	}
	return wrapErr("ban member", b.api.BanChatMember(ctx, params))
}

// The Bot API only exposes administrators; FilterAll is not supported.
func (b *Bot) GetParticipants(ctx context.Context, chatID int64, filter platform.ParticipantFilter) ([]platform.Entity, error) {
	if filter != platform.FilterAdmins {
		return nil, fmt.Errorf("%w: listing all members of a chat", platform.ErrPermission)
	}
	members, err := b.api.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: tu.ID(chatID),
	})
	if err != nil {
		return nil, wrapErr("get chat administrators", err)
	}
	out := make([]platform.Entity, 0, len(members))
	for _, m := range members {
		u := m.MemberUser()
		out = append(out, *userEntity(&u))
	}
	return out, nil
}

func (b *Bot) GetEntity(ctx context.Context, id int64) (*platform.Entity, error) {
	chat, err := b.api.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(id)})
	if err != nil {
		return nil, wrapErr("get chat", err)
	}
	e := &platform.Entity{
		ID:       chat.ID,
		Username: chat.Username,
	}
	switch chat.Type {
	case telego.ChatTypePrivate:
		e.Kind = platform.EntityUser
		e.Name = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	case telego.ChatTypeChannel:
		e.Kind = platform.EntityChannel
		e.Name = chat.Title
	default:
		e.Kind = platform.EntityGroup
		e.Name = chat.Title
	}
	return e, nil
}
