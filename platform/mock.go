package platform

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type Call struct {
	Method    string
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	ToChatID  int64
	Rights    ChatRights
	Until     time.Time
}

// MockClient is an in-process Client which records every call. Safe for concurrent use.
type MockClient struct {
	SelfEntity Entity
	// Rights of the acting account, per chat. Missing chats have no rights.
	ChatRights map[int64]Rights
	Admins     map[int64][]Entity
	Entities   map[int64]Entity

	// Consulted before each call is recorded; a non-nil return fails the call and nothing is recorded.
	FailFn func(Call) error

	lk     sync.Mutex
	calls  []Call
	nextID int
}

var _ Client = (*MockClient)(nil)

func NewMockClient(selfID int64) *MockClient {
	return &MockClient{
		SelfEntity: Entity{ID: selfID, Kind: EntityBot, Name: "kantek", Username: "kantek_bot"},
		ChatRights: make(map[int64]Rights),
		Admins:     make(map[int64][]Entity),
		Entities:   make(map[int64]Entity),
	}
}

func (m *MockClient) record(c Call) (int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.FailFn != nil {
		if err := m.FailFn(c); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrTransport, c.Method, err)
		}
	}
	m.calls = append(m.calls, c)
	m.nextID++
	return m.nextID, nil
}

// All recorded calls, in order.
func (m *MockClient) Calls() []Call {
	m.lk.Lock()
	defer m.lk.Unlock()
	return slices.Clone(m.calls)
}

// Recorded calls of one method.
func (m *MockClient) CallsOf(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Texts sent to one chat, in order.
func (m *MockClient) Sent(chatID int64) []string {
	var out []string
	for _, c := range m.CallsOf("SendMessage") {
		if c.ChatID == chatID {
			out = append(out, c.Text)
		}
	}
	return out
}

func (m *MockClient) Reset() {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.calls = nil
}

func (m *MockClient) Self(ctx context.Context) (*Entity, error) {
	e := m.SelfEntity
	return &e, nil
}

func (m *MockClient) SelfRights(ctx context.Context, chatID int64) (*Rights, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	r := m.ChatRights[chatID]
	return &r, nil
}

func (m *MockClient) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error) {
	c := Call{Method: "SendMessage", ChatID: chatID, Text: text}
	if opts != nil {
		c.MessageID = opts.ReplyTo
	}
	return m.record(c)
}

func (m *MockClient) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := m.record(Call{Method: "EditMessage", ChatID: chatID, MessageID: messageID, Text: text})
	return err
}

func (m *MockClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := m.record(Call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
	return err
}

func (m *MockClient) Forward(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error) {
	return m.record(Call{Method: "Forward", ChatID: fromChatID, MessageID: messageID, ToChatID: toChatID})
}

func (m *MockClient) Restrict(ctx context.Context, chatID, userID int64, rights ChatRights, until time.Time) error {
	_, err := m.record(Call{Method: "Restrict", ChatID: chatID, UserID: userID, Rights: rights, Until: until})
	return err
}

func (m *MockClient) Ban(ctx context.Context, chatID, userID int64, until time.Time) error {
	_, err := m.record(Call{Method: "Ban", ChatID: chatID, UserID: userID, Until: until})
	return err
}

func (m *MockClient) GetParticipants(ctx context.Context, chatID int64, filter ParticipantFilter) ([]Entity, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if filter == FilterAdmins {
		return slices.Clone(m.Admins[chatID]), nil
	}
	var out []Entity
	for _, e := range m.Entities {
		out = append(out, e)
	}
	return out, nil
}

func (m *MockClient) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	e, ok := m.Entities[id]
	if !ok {
		return &Entity{ID: id, Kind: EntityUser}, nil
	}
	return &e, nil
}
