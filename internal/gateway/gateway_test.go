package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"collabchat/internal/auth"
	apperrors "collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/models"
	"collabchat/internal/ratelimit"
	"collabchat/internal/service"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-test-secret"

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) SendPrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error) {
	args := m.Called(ctx, senderID, in)
	msg, _ := args.Get(0).(*models.PrivateMessage)
	return msg, args.Error(1)
}

func (m *mockMessenger) FindPrivateMessages(ctx context.Context, userID, otherID string) ([]*models.PrivateMessage, error) {
	args := m.Called(ctx, userID, otherID)
	msgs, _ := args.Get(0).([]*models.PrivateMessage)
	return msgs, args.Error(1)
}

func (m *mockMessenger) GetMyChats(ctx context.Context, userID string) ([]models.ChatEntry, error) {
	args := m.Called(ctx, userID)
	chats, _ := args.Get(0).([]models.ChatEntry)
	return chats, args.Error(1)
}

func (m *mockMessenger) SendGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error) {
	args := m.Called(ctx, senderID, in)
	msg, _ := args.Get(0).(*models.GroupMessage)
	return msg, args.Error(1)
}

func (m *mockMessenger) FindGroupMessages(ctx context.Context, userID, groupID string) ([]*models.GroupMessage, error) {
	args := m.Called(ctx, userID, groupID)
	msgs, _ := args.Get(0).([]*models.GroupMessage)
	return msgs, args.Error(1)
}

func (m *mockMessenger) MarkSeen(ctx context.Context, userID, messageID string) (*models.PrivateMessage, error) {
	args := m.Called(ctx, userID, messageID)
	msg, _ := args.Get(0).(*models.PrivateMessage)
	return msg, args.Error(1)
}

type testGateway struct {
	server    *httptest.Server
	registry  *service.ConnectionRegistry
	verifier  *auth.Verifier
	messenger *mockMessenger
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestGateway(t *testing.T, opts ...Option) *testGateway {
	t.Helper()
	tg := &testGateway{
		registry:  service.NewConnectionRegistry(),
		verifier:  auth.NewVerifier(testSecret, ""),
		messenger: new(mockMessenger),
	}
	gw := New(ConfigFrom(models.GatewayConfig{}), tg.verifier, tg.messenger, tg.registry, quietLogger(), opts...)
	tg.server = httptest.NewServer(gw)
	t.Cleanup(tg.server.Close)
	return tg
}

func (tg *testGateway) wsURL() string {
	return "ws" + strings.TrimPrefix(tg.server.URL, "http")
}

func (tg *testGateway) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := tg.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (tg *testGateway) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, tg.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + tg.token(t, userID)}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })

	require.Eventually(t, func() bool {
		_, ok := tg.registry.Lookup(userID)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "connection for %s never registered", userID)
	return c
}

func emit(t *testing.T, c *websocket.Conn, event string, data interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, outbound{Event: event, Data: data}))
}

func next(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var env Envelope
	require.NoError(t, wsjson.Read(ctx, c, &env))
	return env
}

func nextError(t *testing.T, c *websocket.Conn) ErrorPayload {
	t.Helper()
	env := next(t, c)
	require.Equal(t, EventError, env.Event)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestGateway_RejectsMissingToken(t *testing.T) {
	tg := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, tg.wsURL(), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	p := nextError(t, c)
	assert.Equal(t, eventConnect, p.Event)
	assert.Equal(t, apperrors.ErrCodeAuthentication, p.Code)

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(4401), websocket.CloseStatus(err))
	assert.Equal(t, 0, tg.registry.Count())
}

func TestGateway_RejectsBadTokens(t *testing.T) {
	tg := newTestGateway(t)
	other := auth.NewVerifier("some-other-secret", "")
	forged, err := other.Issue("alice", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"wrong scheme":    "Basic " + tg.token(t, "alice"),
		"forged":          "Bearer " + forged,
		"garbage":         "Bearer not-a-jwt",
		"scheme no token": "Bearer",
	} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c, _, err := websocket.Dial(ctx, tg.wsURL(), &websocket.DialOptions{
				HTTPHeader: http.Header{"Authorization": []string{header}},
			})
			require.NoError(t, err)
			defer c.CloseNow()

			assert.Equal(t, apperrors.ErrCodeAuthentication, nextError(t, c).Code)
			_, _, err = c.Read(ctx)
			assert.Equal(t, websocket.StatusCode(4401), websocket.CloseStatus(err))
		})
	}
}

func TestGateway_AuthFromQueryParam(t *testing.T) {
	tg := newTestGateway(t)
	tg.messenger.On("GetMyChats", mock.Anything, "alice").Return([]models.ChatEntry{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u := tg.wsURL() + "?" + AuthQueryParam + "=" + url.QueryEscape("Bearer "+tg.token(t, "alice"))
	c, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	emit(t, c, EventGetMyChats, nil)
	env := next(t, c)
	assert.Equal(t, EventMyChats, env.Event)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestGateway_SendMessageUsesConnectionIdentity(t *testing.T) {
	tg := newTestGateway(t)
	c := tg.dial(t, "alice")

	tg.messenger.On("SendPrivateMessage", mock.Anything, "alice", models.PrivateMessageInput{
		ReceiverID: "bob",
		Content:    "hi",
		Type:       models.MessageTypeText,
	}).Return(&models.PrivateMessage{ID: "m1"}, nil).Once()
	tg.messenger.On("GetMyChats", mock.Anything, "alice").Return([]models.ChatEntry{}, nil)

	emit(t, c, EventSendMessage, map[string]string{
		"senderId":   "mallory",
		"receiverId": "bob",
		"content":    "hi",
		"type":       "Text",
	})
	emit(t, c, EventGetMyChats, nil)

	// nothing is echoed to the sender, so the next frame is the chat list
	assert.Equal(t, EventMyChats, next(t, c).Event)
	tg.messenger.AssertExpectations(t)
}

func TestGateway_ErrorsAreScopedAndNonFatal(t *testing.T) {
	tg := newTestGateway(t)
	c := tg.dial(t, "alice")

	tg.messenger.On("FindPrivateMessages", mock.Anything, "alice", "ghost").
		Return(nil, apperrors.NewNotFoundError("user", "ghost"))
	tg.messenger.On("FindGroupMessages", mock.Anything, "alice", "secret").
		Return(nil, apperrors.NewAuthorizationError("group", "secret"))
	tg.messenger.On("GetMyChats", mock.Anything, "alice").
		Return(nil, apperrors.NewDatabaseError("list", assert.AnError))

	emit(t, c, "teleport", nil)
	p := nextError(t, c)
	assert.Equal(t, "teleport", p.Event)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, p.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, apperrors.ErrCodeValidationFailed, nextError(t, c).Code)

	emit(t, c, EventFindMessages, findMessagesRequest{ReceiverID: "ghost"})
	p = nextError(t, c)
	assert.Equal(t, EventFindMessages, p.Event)
	assert.Equal(t, apperrors.ErrCodeNotFound, p.Code)

	emit(t, c, EventFindGroupMessages, findGroupMessagesRequest{GroupID: "secret"})
	assert.Equal(t, apperrors.ErrCodeAuthorization, nextError(t, c).Code)

	emit(t, c, EventGetMyChats, nil)
	p = nextError(t, c)
	assert.Equal(t, apperrors.ErrCodeDatabaseQuery, p.Code)
	assert.NotContains(t, p.Message, assert.AnError.Error(), "store details stay server side")

	_, ok := tg.registry.Lookup("alice")
	assert.True(t, ok, "connection survives non-auth errors")
}

func TestGateway_HistoryReplies(t *testing.T) {
	tg := newTestGateway(t)
	c := tg.dial(t, "alice")

	tg.messenger.On("FindPrivateMessages", mock.Anything, "alice", "bob").
		Return([]*models.PrivateMessage{{ID: "m2"}, {ID: "m1"}}, nil)
	tg.messenger.On("FindGroupMessages", mock.Anything, "alice", "team").
		Return([]*models.GroupMessage{{ID: "g1"}}, nil)

	emit(t, c, EventFindMessages, findMessagesRequest{ReceiverID: "bob"})
	env := next(t, c)
	assert.Equal(t, EventMessageHistory, env.Event)
	var msgs []models.PrivateMessage
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)

	emit(t, c, EventFindGroupMessages, findGroupMessagesRequest{GroupID: "team"})
	env = next(t, c)
	assert.Equal(t, EventGroupMessageHistory, env.Event)
}

func TestGateway_RateLimit(t *testing.T) {
	tg := newTestGateway(t,
		WithLimiter(ratelimit.New(1, time.Minute)),
		WithFlags(staticFlags{features.FlagEventRateLimiting: true}),
	)
	c := tg.dial(t, "alice")
	tg.messenger.On("GetMyChats", mock.Anything, "alice").Return([]models.ChatEntry{}, nil).Once()

	emit(t, c, EventGetMyChats, nil)
	assert.Equal(t, EventMyChats, next(t, c).Event)

	emit(t, c, EventGetMyChats, nil)
	assert.Equal(t, apperrors.ErrCodeRateLimit, nextError(t, c).Code)
	tg.messenger.AssertExpectations(t)
}

func TestGateway_RateLimitFlagOff(t *testing.T) {
	tg := newTestGateway(t,
		WithLimiter(ratelimit.New(1, time.Minute)),
		WithFlags(staticFlags{}),
	)
	c := tg.dial(t, "alice")
	tg.messenger.On("GetMyChats", mock.Anything, "alice").Return([]models.ChatEntry{}, nil)

	for i := 0; i < 3; i++ {
		emit(t, c, EventGetMyChats, nil)
		assert.Equal(t, EventMyChats, next(t, c).Event)
	}
}

func TestGateway_DisconnectDeregisters(t *testing.T) {
	tg := newTestGateway(t)
	c := tg.dial(t, "alice")

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return tg.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestGateway_StaleDisconnectKeepsNewerConnection(t *testing.T) {
	tg := newTestGateway(t)
	first := tg.dial(t, "alice")
	firstConn, _ := tg.registry.Lookup("alice")

	second := tg.dial(t, "alice")
	require.Eventually(t, func() bool {
		current, _ := tg.registry.Lookup("alice")
		return current.ID() != firstConn.ID()
	}, 2*time.Second, 10*time.Millisecond)
	current, _ := tg.registry.Lookup("alice")

	require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
	time.Sleep(100 * time.Millisecond)

	still, ok := tg.registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, current.ID(), still.ID())

	tg.messenger.On("GetMyChats", mock.Anything, "alice").Return([]models.ChatEntry{}, nil)
	emit(t, second, EventGetMyChats, nil)
	assert.Equal(t, EventMyChats, next(t, second).Event)
}

func TestConfigFrom_Defaults(t *testing.T) {
	cfg := ConfigFrom(models.GatewayConfig{})
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, int64(64*1024), cfg.ReadLimit)

	cfg = ConfigFrom(models.GatewayConfig{WriteTimeoutSec: 3, ReadLimitBytes: 1024, AllowedOrigins: []string{"chat.example.com"}})
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, int64(1024), cfg.ReadLimit)
	assert.Equal(t, []string{"chat.example.com"}, cfg.AllowedOrigins)
}

type staticFlags map[string]bool

func (f staticFlags) IsEnabled(name string) bool { return f[name] }

func TestGateway_DispatchCarriesConnectionID(t *testing.T) {
	tg := newTestGateway(t)
	c := tg.dial(t, "alice")
	conn, ok := tg.registry.Lookup("alice")
	require.True(t, ok)

	hasConnID := mock.MatchedBy(func(ctx context.Context) bool {
		return apperrors.FromContext(ctx)["connection_id"] == conn.ID()
	})
	tg.messenger.On("GetMyChats", hasConnID, "alice").Return([]models.ChatEntry{}, nil).Once()

	emit(t, c, EventGetMyChats, nil)
	assert.Equal(t, EventMyChats, next(t, c).Event)
	tg.messenger.AssertExpectations(t)
}
