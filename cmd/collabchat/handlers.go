package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/httputil"
	"collabchat/internal/middleware"
	"collabchat/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Messaging is the application layer behind the REST API
type Messaging interface {
	SendPrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error)
	FindPrivateMessages(ctx context.Context, userID, otherID string) ([]*models.PrivateMessage, error)
	MarkSeen(ctx context.Context, userID, messageID string) (*models.PrivateMessage, error)
	PinPrivateMessage(ctx context.Context, userID, messageID string, pinned bool) (*models.PrivateMessage, error)
	HidePrivateMessage(ctx context.Context, userID, messageID string) error
	DeletePrivateMessage(ctx context.Context, userID, messageID string) error
	BulkDeletePrivateMessages(ctx context.Context, userID string, ids []string) ([]string, error)

	SendGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error)
	FindGroupMessages(ctx context.Context, userID, groupID string) ([]*models.GroupMessage, error)
	PinGroupMessage(ctx context.Context, userID, messageID string, pinned bool) (*models.GroupMessage, error)
	ArchiveGroupMessage(ctx context.Context, userID, messageID string) error
	BulkArchiveGroupMessages(ctx context.Context, userID string, ids []string) (int64, error)

	ForwardMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string, target models.ForwardTarget) (interface{}, error)
	Search(ctx context.Context, userID, query string, scope models.SearchScope, limit int) (*models.SearchResult, error)

	React(ctx context.Context, userID string, kind models.MessageKind, messageID, content string) (*models.Reaction, error)
	RemoveReaction(ctx context.Context, userID, reactionID string) error
	ListReactions(ctx context.Context, userID string, kind models.MessageKind, messageID string) ([]*models.Reaction, error)
	SaveMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string) (*models.SavedMessage, error)
	UnsaveMessage(ctx context.Context, userID, savedID string) error
	ListSavedMessages(ctx context.Context, userID string) ([]*models.SavedMessage, error)

	MuteUser(ctx context.Context, userID, chatUserID string, until time.Time) error
	UnmuteUser(ctx context.Context, userID, chatUserID string) error
	MuteGroup(ctx context.Context, userID, groupID string, until time.Time) error
	UnmuteGroup(ctx context.Context, userID, groupID string) error
	ListMutedChats(ctx context.Context, userID string) ([]*models.MutedChat, error)

	GetMyChats(ctx context.Context, userID string) ([]models.ChatEntry, error)
	RegisterDevice(ctx context.Context, userID, token, platform string) error
}

// PresenceReader answers last-seen and online queries
type PresenceReader interface {
	GetLastSeen(ctx context.Context, viewerID, targetID string) (time.Time, bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// API holds the REST handlers. Every handler runs behind Authenticate.
type API struct {
	messages Messaging
	presence PresenceReader
	logger   *logrus.Logger
	timeout  time.Duration
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type messageRefRequest struct {
	MessageType string `json:"messageType"`
	MessageID   string `json:"messageId"`
}

type forwardRequest struct {
	MessageType string               `json:"messageType"`
	MessageID   string               `json:"messageId"`
	Target      models.ForwardTarget `json:"target"`
}

type reactionRequest struct {
	MessageType string `json:"messageType"`
	MessageID   string `json:"messageId"`
	Content     string `json:"content"`
}

type muteRequest struct {
	Until time.Time `json:"until"`
}

type deviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type presenceResponse struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// caller is always set behind Authenticate; the check guards misrouted handlers
func (a *API) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httputil.WriteError(w, r, errors.NewAuthError("no authenticated user"))
	}
	return userID, ok
}

// fail writes err and logs anything a client could not have caused
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, context.DeadlineExceeded) {
		err = errors.NewTimeoutError(r.Method+" "+r.URL.Path, a.timeout.String())
	}
	if errors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		errors.NewLogger(a.logger).LogError(errors.WithContextFromRequest(toAppError(err), r.Context()), "Request failed")
	}
	httputil.WriteError(w, r, err)
}

func toAppError(err error) *errors.AppError {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	return errors.Wrap(err, errors.ErrCodeInternalError, "unexpected error")
}

func parseKind(s string) (models.MessageKind, error) {
	kind, err := models.ParseMessageKind(s)
	if err != nil {
		return "", errors.NewValidationError("messageType", s, "must be PrivateMessage or GroupMessage")
	}
	return kind, nil
}

func (a *API) sendPrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var in models.PrivateMessageInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.SendPrivateMessage(r.Context(), userID, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (a *API) findPrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	msgs, err := a.messages.FindPrivateMessages(r.Context(), userID, mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(msgs))
}

func (a *API) markSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	msg, err := a.messages.MarkSeen(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

func (a *API) pinPrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.PinPrivateMessage(r.Context(), userID, mux.Vars(r)["id"], req.Pinned)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

func (a *API) hidePrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.messages.HidePrivateMessage(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deletePrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.messages.DeletePrivateMessage(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) bulkDeletePrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	deleted, err := a.messages.BulkDeletePrivateMessages(r.Context(), userID, req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"deleted": nonNil(deleted)})
}

func (a *API) findGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	msgs, err := a.messages.FindGroupMessages(r.Context(), userID, mux.Vars(r)["groupId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(msgs))
}

func (a *API) sendGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var in models.GroupMessageInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	groupID := mux.Vars(r)["groupId"]
	if in.GroupID != "" && in.GroupID != groupID {
		a.fail(w, r, errors.NewValidationError("groupId", in.GroupID, "does not match the URL"))
		return
	}
	in.GroupID = groupID

	msg, err := a.messages.SendGroupMessage(r.Context(), userID, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (a *API) pinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.PinGroupMessage(r.Context(), userID, mux.Vars(r)["id"], req.Pinned)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

func (a *API) archiveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.messages.ArchiveGroupMessage(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) bulkArchiveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.messages.BulkArchiveGroupMessages(r.Context(), userID, req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"archived": n})
}

func (a *API) forwardMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req forwardRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.MessageType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.ForwardMessage(r.Context(), userID, kind, req.MessageID, req.Target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	scope, err := models.ParseSearchScope(q.Get("scope"))
	if err != nil {
		a.fail(w, r, errors.NewValidationError("scope", q.Get("scope"), "must be private, group or all"))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			a.fail(w, r, errors.NewValidationError("limit", raw, "must be a positive integer"))
			return
		}
	}
	result, err := a.messages.Search(r.Context(), userID, q.Get("q"), scope, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (a *API) react(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req reactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.MessageType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	reaction, err := a.messages.React(r.Context(), userID, kind, req.MessageID, req.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reaction)
}

func (a *API) removeReaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.messages.RemoveReaction(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listReactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	kind, err := parseKind(vars["kind"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	reactions, err := a.messages.ListReactions(r.Context(), userID, kind, vars["messageId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(reactions))
}

func (a *API) saveMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req messageRefRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	kind, err := parseKind(req.MessageType)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	saved, err := a.messages.SaveMessage(r.Context(), userID, kind, req.MessageID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, saved)
}

func (a *API) unsaveMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.messages.UnsaveMessage(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	saved, err := a.messages.ListSavedMessages(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(saved))
}

func (a *API) listMutes(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	mutes, err := a.messages.ListMutedChats(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(mutes))
}

func (a *API) muteUser(w http.ResponseWriter, r *http.Request) {
	a.mute(w, r, mux.Vars(r)["userId"], a.messages.MuteUser)
}

func (a *API) muteGroup(w http.ResponseWriter, r *http.Request) {
	a.mute(w, r, mux.Vars(r)["groupId"], a.messages.MuteGroup)
}

func (a *API) mute(w http.ResponseWriter, r *http.Request, target string,
	fn func(ctx context.Context, userID, target string, until time.Time) error) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req muteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), userID, target, req.Until); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) unmuteUser(w http.ResponseWriter, r *http.Request) {
	a.unmute(w, r, mux.Vars(r)["userId"], a.messages.UnmuteUser)
}

func (a *API) unmuteGroup(w http.ResponseWriter, r *http.Request) {
	a.unmute(w, r, mux.Vars(r)["groupId"], a.messages.UnmuteGroup)
}

func (a *API) unmute(w http.ResponseWriter, r *http.Request, target string,
	fn func(ctx context.Context, userID, target string) error) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), userID, target); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getMyChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	chats, err := a.messages.GetMyChats(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nonNil(chats))
}

// getPresence reports online state only together with a visible last seen,
// so the target's policy covers both
func (a *API) getPresence(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	target := mux.Vars(r)["userId"]
	resp := presenceResponse{UserID: target}
	if a.presence == nil {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	ts, visible, err := a.presence.GetLastSeen(r.Context(), userID, target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if visible {
		resp.LastSeen = &ts
		online, err := a.presence.IsOnline(r.Context(), target)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		resp.Online = online
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (a *API) registerDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.messages.RegisterDevice(r.Context(), userID, req.Token, req.Platform); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists as [] rather than null on the wire
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
