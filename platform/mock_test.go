package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockClientRecordsAndFails(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := NewMockClient(1)
	id1, err := m.SendMessage(ctx, 10, "hello", nil)
	assert.NoError(err)
	id2, err := m.SendMessage(ctx, 10, "world", &SendOptions{ReplyTo: id1})
	assert.NoError(err)
	assert.NotEqual(id1, id2)
	assert.Equal([]string{"hello", "world"}, m.Sent(10))

	m.FailFn = func(c Call) error {
		if c.Method == "Ban" {
			return errors.New("flood wait")
		}
		return nil
	}
	err = m.Ban(ctx, 10, 99, Forever)
	assert.ErrorIs(err, ErrTransport)
	assert.Empty(m.CallsOf("Ban"))

	assert.NoError(m.DeleteMessage(ctx, 10, id1))
	assert.Len(m.Calls(), 3)

	m.Reset()
	assert.Empty(m.Calls())
}

func TestMention(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("@spammer", Mention(&Entity{ID: 1, Username: "spammer", Name: "Spam"}))
	assert.Equal("Spam", Mention(&Entity{ID: 1, Name: "Spam"}))
	assert.Equal("user", Mention(&Entity{ID: 1}))
	assert.Equal("", Mention(nil))
}
