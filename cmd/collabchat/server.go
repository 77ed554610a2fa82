package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/httputil"
	"collabchat/internal/metrics"
	"collabchat/internal/middleware"
	"collabchat/internal/models"
	"collabchat/internal/ratelimit"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"
)

// APIPrefix is where every authenticated REST route lives
const APIPrefix = "/api/v1"

// Pinger is a dependency probed by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP layer needs
type Dependencies struct {
	Messages     Messaging
	Presence     PresenceReader
	Auth         middleware.Authenticator
	Gateway      http.Handler
	Flags        middleware.FeatureChecker
	RateLimiter  *ratelimit.Limiter
	HealthChecks map[string]Pinger
}

type Server struct {
	cfg     *models.Config
	deps    Dependencies
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger
	server  *http.Server

	// connCtx parents every request; cancelling it ends hijacked websocket
	// connections, which http.Server.Shutdown does not track
	connCtx    context.Context
	closeConns context.CancelFunc
}

func NewServer(cfg *models.Config, deps Dependencies, logger *logrus.Logger) *Server {
	if deps.RateLimiter == nil {
		deps.RateLimiter = ratelimit.New(cfg.Server.RateLimitPerMinute, time.Minute)
	}
	connCtx, closeConns := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		router:     mux.NewRouter(),
		logger:     logger,
		connCtx:    connCtx,
		closeConns: closeConns,
	}
	s.setupRoutes()
	s.handler = alice.New(middleware.Recover(logger)).Then(s.router)
	return s
}

func (s *Server) setupRoutes() {
	trustProxy := s.cfg.Server.TrustProxyHeaders

	s.router.Use(middleware.Observability(s.logger, trustProxy))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, errors.NewNotFoundError("route", r.URL.Path))
	})

	// Unversioned endpoints
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Default().Handler()).Methods(http.MethodGet)

	limited := alice.New(middleware.RateLimit(s.deps.RateLimiter, trustProxy, s.logger))
	if s.deps.Gateway != nil {
		// The gateway authenticates the handshake itself
		s.router.Handle("/ws", limited.Then(s.deps.Gateway)).Methods(http.MethodGet)
	}

	requestTimeout := time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second
	authed := limited.Append(
		middleware.DetailedLogging(s.logger, s.deps.Flags, features.FlagDetailedLogging, middleware.DefaultDetailedLoggingConfig()),
		middleware.Authenticate(s.deps.Auth, s.logger),
		middleware.TouchPresence(s.presenceWriter(), s.deps.Flags, features.FlagPresenceTracking, s.logger),
		middleware.Timeout(requestTimeout),
	)

	api := &API{messages: s.deps.Messages, presence: s.deps.Presence, logger: s.logger, timeout: requestTimeout}
	v1 := s.router.PathPrefix(APIPrefix).Subrouter()
	route := func(method, path string, h http.HandlerFunc) {
		v1.Handle(path, authed.ThenFunc(h)).Methods(method)
	}

	// Private messages. Literal paths come before {id} patterns.
	route(http.MethodPost, "/messages/bulk-delete", api.bulkDeletePrivate)
	route(http.MethodPost, "/messages/forward", api.forwardMessage)
	route(http.MethodPost, "/messages", api.sendPrivate)
	route(http.MethodGet, "/messages/{userId}", api.findPrivate)
	route(http.MethodPost, "/messages/{id}/seen", api.markSeen)
	route(http.MethodPut, "/messages/{id}/pin", api.pinPrivate)
	route(http.MethodPost, "/messages/{id}/hide", api.hidePrivate)
	route(http.MethodDelete, "/messages/{id}", api.deletePrivate)

	// Group messages
	route(http.MethodGet, "/groups/{groupId}/messages", api.findGroup)
	route(http.MethodPost, "/groups/{groupId}/messages", api.sendGroup)
	route(http.MethodPost, "/group-messages/bulk-archive", api.bulkArchiveGroup)
	route(http.MethodPut, "/group-messages/{id}/pin", api.pinGroup)
	route(http.MethodDelete, "/group-messages/{id}", api.archiveGroup)

	route(http.MethodGet, "/search", api.search)

	// Reactions and saved messages
	route(http.MethodPut, "/reactions", api.react)
	route(http.MethodDelete, "/reactions/{id}", api.removeReaction)
	route(http.MethodGet, "/reactions/{kind}/{messageId}", api.listReactions)
	route(http.MethodPost, "/saved", api.saveMessage)
	route(http.MethodDelete, "/saved/{id}", api.unsaveMessage)
	route(http.MethodGet, "/saved", api.listSaved)

	// Mutes
	route(http.MethodGet, "/mutes", api.listMutes)
	route(http.MethodPut, "/mutes/users/{userId}", api.muteUser)
	route(http.MethodDelete, "/mutes/users/{userId}", api.unmuteUser)
	route(http.MethodPut, "/mutes/groups/{groupId}", api.muteGroup)
	route(http.MethodDelete, "/mutes/groups/{groupId}", api.unmuteGroup)

	route(http.MethodGet, "/chats", api.getMyChats)
	route(http.MethodGet, "/presence/{userId}", api.getPresence)
	route(http.MethodPut, "/devices", api.registerDevice)
}

// presenceWriter is nil when presence is not wired or cannot record
func (s *Server) presenceWriter() middleware.LastSeenWriter {
	if w, ok := s.deps.Presence.(middleware.LastSeenWriter); ok {
		return w
	}
	return nil
}

// Handler returns the fully wrapped handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.connCtx },
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains REST requests, then closes websocket connections
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.closeConns()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.HealthChecks))}
		status := http.StatusOK
		for name, p := range s.deps.HealthChecks {
			if err := p.Ping(ctx); err != nil {
				s.logger.WithError(err).WithField("check", name).Warn("Health check failed")
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
