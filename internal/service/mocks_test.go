package service

import (
	"context"
	"sync"
	"time"

	"collabchat/pkg/notify"

	"github.com/stretchr/testify/mock"
)

// fakeConn records the events written to it
type fakeConn struct {
	id      string
	sendErr error

	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	name    string
	payload interface{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, event string, payload interface{}) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{name: event, payload: payload})
	return nil
}

func (c *fakeConn) Events() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentEvent(nil), c.events...)
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Push(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockPusher) Close() error {
	return m.Called().Error(0)
}

type mockDevices struct {
	mock.Mock
}

func (m *mockDevices) FindDeviceToken(ctx context.Context, userID string) (string, bool, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Bool(1), args.Error(2)
}

type mockMutes struct {
	mock.Mock
}

func (m *mockMutes) IsPrivateChatMuted(ctx context.Context, userID, chatUserID string, at time.Time) (bool, error) {
	args := m.Called(ctx, userID, chatUserID, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockMutes) IsGroupChatMuted(ctx context.Context, userID, groupID string, at time.Time) (bool, error) {
	args := m.Called(ctx, userID, groupID, at)
	return args.Bool(0), args.Error(1)
}

type mockExpiredMutes struct {
	mock.Mock
}

func (m *mockExpiredMutes) DeleteExpiredMutes(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type staticFlags map[string]bool

func (f staticFlags) IsEnabled(name string) bool { return f[name] }
