package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventVariants(t *testing.T) {
	assert := assert.New(t)

	msg := Event{
		ChatID:   -100123,
		SenderID: 42,
		Message: &Message{
			Text:    ".gban spam",
			ReplyTo: &Reply{MessageID: 7, SenderID: 99},
		},
	}
	assert.NoError(msg.Validate())
	assert.Equal(KindMessage, msg.Kind())
	assert.Equal(".gban spam", msg.RawText())
	assert.True(msg.IsReply())
	assert.Equal(int64(99), msg.ReplyTarget().SenderID)
	assert.Equal(int64(42), msg.SubjectID())
	assert.Equal("-100123", msg.ChatKey())

	join := Event{
		ChatID:     5,
		SenderID:   1,
		ChatAction: &ChatAction{Action: ActionUserJoined, UserID: 77},
	}
	assert.NoError(join.Validate())
	assert.Equal(KindChatAction, join.Kind())
	assert.Empty(join.RawText())
	assert.False(join.IsReply())
	assert.Nil(join.ReplyTarget())
	assert.Equal(int64(77), join.SubjectID())

	assert.Error((&Event{}).Validate())
	both := Event{Message: &Message{}, ChatAction: &ChatAction{}}
	assert.Error(both.Validate())
}
