// Interfaces to the chat platform: the connection that delivers events, and the client used to act on chats.
//
// Implementations live in sub-packages (eg, platform/telegram). The in-process MockClient is used by tests across the module.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/kantek-org/kantek/events"
)

var (
	// The platform (or the coordination channel) could not be reached, or rejected the request for a non-permission reason.
	ErrTransport = errors.New("platform transport error")

	// The acting account lacks the rights for an operation in the target chat.
	ErrPermission = errors.New("insufficient rights")

	// The request would not change anything, eg restricting a chat to the rights it already has.
	ErrNotModified = errors.New("not modified")
)

// "Forever", as far as the platform is concerned. Matches the restriction end used for permanent bans.
var Forever = time.Date(2038, time.January, 1, 0, 0, 0, 0, time.UTC)

type ParticipantFilter int

const (
	FilterAll ParticipantFilter = iota
	FilterAdmins
)

type EntityKind string

const (
	EntityUser    EntityKind = "user"
	EntityBot     EntityKind = "bot"
	EntityGroup   EntityKind = "group"
	EntityChannel EntityKind = "channel"
)

type Entity struct {
	ID       int64
	Kind     EntityKind
	Name     string
	Username string
}

// Rights of the acting account in a chat.
type Rights struct {
	Admin          bool
	BanUsers       bool
	DeleteMessages bool
}

// Send rights of a chat member, or of the chat's default member permissions. The zero value is read-only.
type ChatRights struct {
	SendMessages bool
	SendMedia    bool
	SendOther    bool
	AddPreviews  bool
	InviteUsers  bool
	PinMessages  bool
	ChangeInfo   bool
}

type SendOptions struct {
	ReplyTo        int
	DisablePreview bool
}

// Client performs actions on the platform on behalf of one account.
type Client interface {
	// The acting account itself.
	Self(ctx context.Context) (*Entity, error)
	SelfRights(ctx context.Context, chatID int64) (*Rights, error)

	// Returns the new message's ID.
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// Copies a message into another chat, returning the new message's ID.
	Forward(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error)

	// Restricts a member. A userID of zero changes the chat's default member rights.
	Restrict(ctx context.Context, chatID, userID int64, rights ChatRights, until time.Time) error
	Ban(ctx context.Context, chatID, userID int64, until time.Time) error

	GetParticipants(ctx context.Context, chatID int64, filter ParticipantFilter) ([]Entity, error)
	GetEntity(ctx context.Context, id int64) (*Entity, error)
}

// Source delivers events from a persistent platform connection, in order within each chat. Run blocks until the context is cancelled or the connection fails.
type Source interface {
	Run(ctx context.Context, deliver func(*events.Event)) error
}

// Formats a user mention as plain text.
func Mention(e *Entity) string {
	if e == nil {
		return ""
	}
	if e.Username != "" {
		return "@" + e.Username
	}
	if e.Name != "" {
		return e.Name
	}
	return "user"
}
