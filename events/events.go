// Chat event model shared by the event source, the dispatcher and handlers.
//
// An Event is a tagged union: exactly one of the variant pointers is set. Use Kind() (or a type switch on the variant fields) rather than inspecting which field happens to be non-nil.
package events

import (
	"fmt"
	"strconv"
	"time"
)

type Kind string

const (
	KindMessage    Kind = "message"
	KindChatAction Kind = "chat-action"
)

// The action carried by a ChatAction event.
type Action string

const (
	ActionUserJoined Action = "user-joined"
	ActionUserAdded  Action = "user-added"
	ActionUserLeft   Action = "user-left"
)

// A message that this event's message replies to.
type Reply struct {
	MessageID int
	// Author of the replied-to message. Zero when the platform did not provide one (eg, deleted account).
	SenderID int64
}

type Message struct {
	Text    string
	ReplyTo *Reply
}

type ChatAction struct {
	Action Action
	// The user affected by the action (the joined or added account)
	UserID int64
}

// Immutable once created by the event source.
type Event struct {
	ChatID    int64
	SenderID  int64
	MessageID int
	// Whether the event was authored by the operator of this bot.
	Outgoing bool
	// Private (direct) conversation, as opposed to a group or channel.
	Private   bool
	Timestamp time.Time

	Message    *Message
	ChatAction *ChatAction
}

func (evt *Event) Kind() Kind {
	switch {
	case evt.Message != nil:
		return KindMessage
	case evt.ChatAction != nil:
		return KindChatAction
	default:
		return ""
	}
}

// Checks that exactly one variant is populated.
func (evt *Event) Validate() error {
	switch {
	case evt.Message != nil && evt.ChatAction != nil:
		return fmt.Errorf("event has both message and chat-action variants")
	case evt.Message == nil && evt.ChatAction == nil:
		return fmt.Errorf("event has no variant")
	}
	return nil
}

// Text of the message, or empty for chat actions.
func (evt *Event) RawText() string {
	if evt.Message == nil {
		return ""
	}
	return evt.Message.Text
}

func (evt *Event) IsReply() bool {
	return evt.Message != nil && evt.Message.ReplyTo != nil
}

func (evt *Event) ReplyTarget() *Reply {
	if evt.Message == nil {
		return nil
	}
	return evt.Message.ReplyTo
}

// The account the event is "about": the sender of a message, or the subject of a chat action.
func (evt *Event) SubjectID() int64 {
	if evt.ChatAction != nil {
		return evt.ChatAction.UserID
	}
	return evt.SenderID
}

// Key used to order work for a single chat.
func (evt *Event) ChatKey() string {
	return strconv.FormatInt(evt.ChatID, 10)
}
