// Package gateway is the realtime websocket endpoint. It authenticates the
// upgrade request, registers the connection and dispatches client events to
// the messaging service in receive order.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"collabchat/internal/auth"
	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/metrics"
	"collabchat/internal/models"
	"collabchat/internal/ratelimit"
	"collabchat/internal/service"
	"collabchat/internal/tracing"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// AuthQueryParam carries "<scheme> <token>" for clients that cannot set
// headers on the upgrade request
const AuthQueryParam = "auth"

// Messenger is the part of the messaging service the gateway drives
type Messenger interface {
	SendPrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error)
	FindPrivateMessages(ctx context.Context, userID, otherID string) ([]*models.PrivateMessage, error)
	GetMyChats(ctx context.Context, userID string) ([]models.ChatEntry, error)
	SendGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error)
	FindGroupMessages(ctx context.Context, userID, groupID string) ([]*models.GroupMessage, error)
	MarkSeen(ctx context.Context, userID, messageID string) (*models.PrivateMessage, error)
}

// Authenticator resolves the caller of an upgrade request
type Authenticator interface {
	Verify(ctx context.Context, header string) (*auth.Identity, error)
}

// Presence is the online and last-seen state kept per user
type Presence interface {
	SetLastSeen(ctx context.Context, userID string, ts time.Time) error
	GetLastSeen(ctx context.Context, viewerID, targetID string) (time.Time, bool, error)
	MarkOnline(ctx context.Context, userID, connID string) error
	MarkOffline(ctx context.Context, userID, connID string) (bool, error)
}

type Config struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
	ReadLimit      int64
}

// ConfigFrom fills unset values with defaults
func ConfigFrom(cfg models.GatewayConfig) Config {
	c := Config{
		AllowedOrigins: cfg.AllowedOrigins,
		WriteTimeout:   time.Duration(cfg.WriteTimeoutSec) * time.Second,
		ReadLimit:      cfg.ReadLimitBytes,
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = constants.DefaultGatewayWriteTimeoutSec * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = constants.DefaultGatewayReadLimitBytes
	}
	return c
}

type Gateway struct {
	cfg       Config
	auth      Authenticator
	messenger Messenger
	registry  service.Registry
	presence  Presence
	limiter   *ratelimit.Limiter
	flags     service.FeatureChecker
	logger    *logrus.Logger
	errLog    *errors.Logger
	handlers  map[string]handlerFunc
	now       func() time.Time
}

type Option func(*Gateway)

// WithPresence enables online tracking and last-seen lookups
func WithPresence(p Presence) Option {
	return func(g *Gateway) { g.presence = p }
}

// WithLimiter caps events per user
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

func WithFlags(f service.FeatureChecker) Option {
	return func(g *Gateway) { g.flags = f }
}

func New(cfg Config, authn Authenticator, messenger Messenger, registry service.Registry, logger *logrus.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	g := &Gateway{
		cfg:       cfg,
		auth:      authn,
		messenger: messenger,
		registry:  registry,
		logger:    logger,
		errLog:    errors.NewLogger(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.handlers = map[string]handlerFunc{
		EventSendMessage:       g.handleSendMessage,
		EventFindMessages:      g.handleFindMessages,
		EventGetMyChats:        g.handleGetMyChats,
		EventSendGroupMessage:  g.handleSendGroupMessage,
		EventFindGroupMessages: g.handleFindGroupMessages,
		EventMarkSeen:          g.handleMarkSeen,
		EventGetLastSeen:       g.handleGetLastSeen,
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: g.cfg.AllowedOrigins}
	if slices.Contains(g.cfg.AllowedOrigins, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		g.logger.WithError(err).Debug("Websocket upgrade rejected")
		return
	}
	if g.cfg.ReadLimit > 0 {
		ws.SetReadLimit(g.cfg.ReadLimit)
	}

	conn := newConn(ws, g.cfg.WriteTimeout)
	ctx := r.Context()

	identity, err := g.authenticate(ctx, r)
	if err != nil {
		g.errLog.LogClientError(err, "Gateway authentication failed", logrus.Fields{
			service.LogFieldConnectionID: conn.ID(),
		})
		metrics.IncrementCounter("gateway_auth_failures_total", nil, "Rejected websocket handshakes")
		_ = conn.Send(ctx, EventError, errorPayload(eventConnect, err))
		_ = ws.Close(websocket.StatusCode(constants.GatewayCloseUnauthorized), "unauthorized")
		return
	}
	conn.userID = identity.UserID

	g.attach(ctx, conn)
	defer g.detach(conn)

	g.readLoop(ctx, conn)
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (*auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		header = r.URL.Query().Get(AuthQueryParam)
	}
	return g.auth.Verify(ctx, header)
}

func (g *Gateway) attach(ctx context.Context, c *Conn) {
	log := g.logger.WithFields(logrus.Fields{
		service.LogFieldUserID:       service.SanitizeUserID(c.userID),
		service.LogFieldConnectionID: c.ID(),
	})

	if replaced := g.registry.Register(c.userID, c); replaced != nil {
		log.WithField("replaced_connection_id", replaced.ID()).Info("Connection replaced an earlier one for the same user")
	}

	if g.presenceEnabled() {
		if err := g.presence.MarkOnline(ctx, c.userID, c.ID()); err != nil {
			log.WithError(err).Warn("Failed to mark user online")
		}
		g.touch(ctx, c.userID)
	}

	metrics.SetGauge("gateway_active_connections", float64(g.registry.Count()), nil, "Authenticated websocket connections")
	log.Info("Client connected")
}

// detach runs after the socket is gone, so it works on a fresh context
func (g *Gateway) detach(c *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultRedisTimeout*time.Second)
	defer cancel()

	log := g.logger.WithFields(logrus.Fields{
		service.LogFieldUserID:       service.SanitizeUserID(c.userID),
		service.LogFieldConnectionID: c.ID(),
	})

	current := g.registry.DeregisterConnection(c.userID, c.ID())
	if current && g.limiter != nil {
		g.limiter.Forget(c.userID)
	}

	if g.presenceEnabled() {
		if _, err := g.presence.MarkOffline(ctx, c.userID, c.ID()); err != nil {
			log.WithError(err).Warn("Failed to mark user offline")
		}
		g.touch(ctx, c.userID)
	}

	metrics.SetGauge("gateway_active_connections", float64(g.registry.Count()), nil, "Authenticated websocket connections")
	log.WithField("was_current", current).Info("Client disconnected")
}

func (g *Gateway) readLoop(ctx context.Context, c *Conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				g.logger.WithError(err).WithField(service.LogFieldConnectionID, c.ID()).Debug("Websocket read ended")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.reply(ctx, c, "", errors.NewValidationError("event", "", "malformed JSON envelope"))
			continue
		}
		g.dispatch(ctx, c, env)
	}
}

// dispatch handles one event. Handlers run on a context that outlives the
// socket so a disconnect never aborts a half-finished write.
func (g *Gateway) dispatch(parent context.Context, c *Conn, env Envelope) {
	start := time.Now()
	ctx := errors.WithConnectionID(context.WithoutCancel(parent), c.ID())

	handler, known := g.handlers[env.Event]
	label := env.Event
	if !known {
		label = "unknown"
	}

	ctx, span := tracing.StartSpan(ctx, "gateway."+label,
		attribute.String("gateway.event", label),
		attribute.String("gateway.connection_id", c.ID()),
	)
	defer span.End()

	var err error
	switch {
	case !known:
		err = errors.NewValidationError("event", env.Event, "unknown event")
	case !g.allow(c.userID):
		limit, window := g.limiter.Limit()
		err = errors.NewRateLimitError(limit, window.String())
	default:
		if g.presenceEnabled() {
			g.touch(ctx, c.userID)
		}
		err = handler(ctx, c, env.Data)
	}

	status := "ok"
	if err != nil {
		status = string(errors.GetCode(err))
		tracing.RecordError(ctx, err)
		g.reply(ctx, c, env.Event, err)
	}

	metrics.IncrementCounter("gateway_events_total",
		map[string]string{"event": label, "status": status}, "Realtime events processed")
	metrics.RecordTimer("gateway_event_duration",
		time.Since(start), map[string]string{"event": label}, "Realtime event handling time")
}

// reply sends the scoped error event and logs the failure with the
// connection id dispatch put on ctx
func (g *Gateway) reply(ctx context.Context, c *Conn, event string, err error) {
	logged := errors.Wrap(err, errors.GetCode(err), "gateway event failed")
	if appErr, ok := errors.As(err); ok {
		logged = appErr
	}
	g.errLog.LogClientError(errors.WithContextFromRequest(logged, ctx), "Gateway event failed", logrus.Fields{
		service.LogFieldEvent:  event,
		service.LogFieldUserID: service.SanitizeUserID(c.userID),
	})
	if sendErr := c.Send(ctx, EventError, errorPayload(event, err)); sendErr != nil {
		g.logger.WithError(sendErr).WithField(service.LogFieldConnectionID, c.ID()).Debug("Failed to send error event")
	}
}

func errorPayload(event string, err error) ErrorPayload {
	return ErrorPayload{
		Event:   event,
		Code:    errors.GetCode(err),
		Message: errors.GetUserMessage(err),
	}
}

func (g *Gateway) allow(userID string) bool {
	if g.limiter == nil || !g.enabled(features.FlagEventRateLimiting) {
		return true
	}
	return g.limiter.Allow(userID)
}

// touch records activity. Presence is best-effort and never fails an event.
func (g *Gateway) touch(ctx context.Context, userID string) {
	if err := g.presence.SetLastSeen(ctx, userID, g.now()); err != nil {
		g.logger.WithError(err).WithField(service.LogFieldUserID, service.SanitizeUserID(userID)).Debug("Failed to update last seen")
	}
}

func (g *Gateway) presenceEnabled() bool {
	return g.presence != nil && g.enabled(features.FlagPresenceTracking)
}

func (g *Gateway) enabled(flag string) bool {
	return g.flags == nil || g.flags.IsEnabled(flag)
}
