package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	apperrors "collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/models"
	"collabchat/pkg/circuitbreaker"
	"collabchat/pkg/notify"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type deliveryFixture struct {
	registry *ConnectionRegistry
	devices  *mockDevices
	mutes    *mockMutes
	pusher   *mockPusher
	flags    staticFlags
	delivery *Delivery
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &deliveryFixture{
		registry: NewConnectionRegistry(),
		devices:  new(mockDevices),
		mutes:    new(mockMutes),
		pusher:   new(mockPusher),
		flags:    staticFlags{features.FlagOfflinePush: true},
	}
	breaker := circuitbreaker.New("push-test", 2, time.Minute)
	f.delivery = NewDelivery(f.registry, f.devices, f.mutes, f.pusher, breaker, f.flags, logger)
	return f
}

func (f *deliveryFixture) assertExpectations(t *testing.T) {
	f.devices.AssertExpectations(t)
	f.mutes.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
}

func samplePrivate() *models.PrivateMessage {
	return &models.PrivateMessage{
		ID:         "msg-1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "  hello bob  ",
		Type:       models.MessageTypeText,
		CreatedAt:  time.Now(),
		Sender:     &models.Profile{ID: "alice", FirstName: "Alice", LastName: "Smith", AvatarURL: "https://cdn/a.png"},
	}
}

func TestDelivery_PrivateLive(t *testing.T) {
	f := newDeliveryFixture(t)
	bobConn := newFakeConn("c-bob")
	aliceConn := newFakeConn("c-alice")
	f.registry.Register("bob", bobConn)
	f.registry.Register("alice", aliceConn)

	msg := samplePrivate()
	outcome := f.delivery.DeliverPrivate(context.Background(), msg)

	assert.Equal(t, DeliveredLive, outcome)
	events := bobConn.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventNewMessage, events[0].name)
	assert.Same(t, msg, events[0].payload)
	assert.Empty(t, aliceConn.Events(), "sender gets no echo")
	f.assertExpectations(t)
}

func TestDelivery_PrivateOfflinePush(t *testing.T) {
	f := newDeliveryFixture(t)
	f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
	f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
	f.pusher.On("Push", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Token == "token-bob" &&
			n.Title == "Alice Smith" &&
			n.Body == "hello bob" &&
			n.Icon == "https://cdn/a.png" &&
			n.Data["messageId"] == "msg-1" &&
			n.Data["kind"] == string(models.KindPrivate)
	})).Return(nil)

	outcome := f.delivery.DeliverPrivate(context.Background(), samplePrivate())

	assert.Equal(t, DeliveredPush, outcome)
	f.assertExpectations(t)
}

func TestDelivery_OfflineOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *deliveryFixture)
		want  DeliveryOutcome
	}{
		{
			name: "muted conversation suppresses push",
			setup: func(f *deliveryFixture) {
				f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(true, nil)
			},
			want: DeliveryMuted,
		},
		{
			name: "no registered device",
			setup: func(f *deliveryFixture) {
				f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
				f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("", false, nil)
			},
			want: DeliverySkipped,
		},
		{
			name: "device lookup error",
			setup: func(f *deliveryFixture) {
				f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
				f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("", false, errors.New("db down"))
			},
			want: DeliveryFailed,
		},
		{
			name: "mute check error still pushes",
			setup: func(f *deliveryFixture) {
				f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, errors.New("db down"))
				f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
				f.pusher.On("Push", mock.Anything, mock.Anything).Return(nil)
			},
			want: DeliveredPush,
		},
		{
			name: "provider failure",
			setup: func(f *deliveryFixture) {
				f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
				f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
				f.pusher.On("Push", mock.Anything, mock.Anything).Return(errors.New("provider down"))
			},
			want: DeliveryFailed,
		},
		{
			name: "offline push disabled",
			setup: func(f *deliveryFixture) {
				f.flags[features.FlagOfflinePush] = false
			},
			want: DeliverySkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDeliveryFixture(t)
			tt.setup(f)

			assert.Equal(t, tt.want, f.delivery.DeliverPrivate(context.Background(), samplePrivate()))
			f.assertExpectations(t)
		})
	}
}

func TestDelivery_SendFailureFallsBackToPush(t *testing.T) {
	f := newDeliveryFixture(t)
	broken := newFakeConn("c-bob")
	broken.sendErr = errors.New("socket closed")
	f.registry.Register("bob", broken)

	f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
	f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
	f.pusher.On("Push", mock.Anything, mock.Anything).Return(nil)

	assert.Equal(t, DeliveredPush, f.delivery.DeliverPrivate(context.Background(), samplePrivate()))
	f.assertExpectations(t)
}

func TestDelivery_PushFailureLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		pushErr   error
		wantLevel string
	}{
		{
			name:      "retryable provider error",
			pushErr:   apperrors.NewAPIError("push", "/send", 503, errors.New("unavailable")),
			wantLevel: `"level":"warning"`,
		},
		{
			name:      "permanent provider error",
			pushErr:   apperrors.NewAPIError("push", "/send", 400, errors.New("bad token")),
			wantLevel: `"level":"error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDeliveryFixture(t)
			var buf bytes.Buffer
			logger := logrus.New()
			logger.SetOutput(&buf)
			logger.SetFormatter(&logrus.JSONFormatter{})
			f.delivery = NewDelivery(f.registry, f.devices, f.mutes, f.pusher,
				circuitbreaker.New("push-test", 5, time.Minute), f.flags, logger)

			f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
			f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
			f.pusher.On("Push", mock.Anything, mock.Anything).Return(tt.pushErr)

			assert.Equal(t, DeliveryFailed, f.delivery.DeliverPrivate(context.Background(), samplePrivate()))
			assert.Contains(t, buf.String(), "Failed to send push notification")
			assert.Contains(t, buf.String(), tt.wantLevel)
		})
	}
}

func TestDelivery_OpenBreakerSkipsProvider(t *testing.T) {
	f := newDeliveryFixture(t)
	f.mutes.On("IsPrivateChatMuted", mock.Anything, "bob", "alice", mock.Anything).Return(false, nil)
	f.devices.On("FindDeviceToken", mock.Anything, "bob").Return("token-bob", true, nil)
	f.pusher.On("Push", mock.Anything, mock.Anything).Return(errors.New("provider down")).Twice()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.Equal(t, DeliveryFailed, f.delivery.DeliverPrivate(ctx, samplePrivate()))
	}

	f.pusher.AssertNumberOfCalls(t, "Push", 2)
	assert.Equal(t, circuitbreaker.StateOpen, f.delivery.breaker.State())
}

func TestDelivery_GroupFanOut(t *testing.T) {
	f := newDeliveryFixture(t)
	bobConn := newFakeConn("c-bob")
	aliceConn := newFakeConn("c-alice")
	f.registry.Register("bob", bobConn)
	f.registry.Register("alice", aliceConn)

	f.mutes.On("IsGroupChatMuted", mock.Anything, "carol", "group-1", mock.Anything).Return(false, nil)
	f.devices.On("FindDeviceToken", mock.Anything, "carol").Return("token-carol", true, nil)
	f.pusher.On("Push", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Token == "token-carol" && n.Data["groupId"] == "group-1"
	})).Return(nil)
	f.mutes.On("IsGroupChatMuted", mock.Anything, "dave", "group-1", mock.Anything).Return(true, nil)

	msg := &models.GroupMessage{
		ID:       "gm-1",
		SenderID: "alice",
		GroupID:  "group-1",
		Content:  "standup in 5",
		Type:     models.MessageTypeText,
		Sender:   &models.Profile{ID: "alice", FirstName: "Alice"},
	}
	outcomes := f.delivery.DeliverGroup(context.Background(), msg, []string{"alice", "bob", "carol", "dave"})

	assert.Equal(t, map[string]DeliveryOutcome{
		"bob":   DeliveredLive,
		"carol": DeliveredPush,
		"dave":  DeliveryMuted,
	}, outcomes)
	assert.Empty(t, aliceConn.Events())
	require.Len(t, bobConn.Events(), 1)
	assert.Equal(t, EventNewGroupMessage, bobConn.Events()[0].name)
	f.assertExpectations(t)
}

func TestDelivery_NilPusherSkipsOffline(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	d := NewDelivery(NewConnectionRegistry(), new(mockDevices), new(mockMutes), nil, nil, nil, logger)

	assert.Equal(t, DeliverySkipped, d.DeliverPrivate(context.Background(), samplePrivate()))
}

func TestDelivery_NotifyLive(t *testing.T) {
	f := newDeliveryFixture(t)
	conn := newFakeConn("c-alice")
	f.registry.Register("alice", conn)

	assert.True(t, f.delivery.NotifyLive(context.Background(), "alice", EventMessageSeen, map[string]string{"id": "m1"}))
	assert.False(t, f.delivery.NotifyLive(context.Background(), "bob", EventMessageSeen, nil))
	require.Len(t, conn.Events(), 1)
	assert.Equal(t, EventMessageSeen, conn.Events()[0].name)
}
