package gateway

import (
	"context"
	"encoding/json"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/models"
)

// Inbound events
const (
	EventSendMessage       = "sendMessage"
	EventFindMessages      = "findMessages"
	EventGetMyChats        = "getMyChats"
	EventSendGroupMessage  = "sendGroupMessage"
	EventFindGroupMessages = "findGroupMessages"
	EventMarkSeen          = "markSeen"
	EventGetLastSeen       = "getLastSeen"
)

// Outbound replies to the requesting connection
const (
	EventMessageHistory      = "messageHistory"
	EventMyChats             = "myChats"
	EventGroupMessageHistory = "groupMessageHistory"
	EventLastSeen            = "lastSeen"
	EventError               = "error"
)

// eventConnect names the handshake in error payloads
const eventConnect = "connect"

// ErrorPayload is scoped to the connection whose event failed
type ErrorPayload struct {
	Event   string           `json:"event"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type findMessagesRequest struct {
	ReceiverID string `json:"receiverId"`
}

type findGroupMessagesRequest struct {
	GroupID string `json:"groupId"`
}

type markSeenRequest struct {
	MessageID string `json:"messageId"`
}

type lastSeenRequest struct {
	UserID string `json:"userId"`
}

// LastSeenPayload carries a nil timestamp when the target's policy hides it
// or nothing is cached
type LastSeenPayload struct {
	UserID   string     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen"`
}

type handlerFunc func(ctx context.Context, c *Conn, data json.RawMessage) error

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewValidationError("data", "", "malformed payload")
	}
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Conn, data json.RawMessage) error {
	var in models.PrivateMessageInput
	if err := decode(data, &in); err != nil {
		return err
	}
	_, err := g.messenger.SendPrivateMessage(ctx, c.userID, in)
	return err
}

func (g *Gateway) handleFindMessages(ctx context.Context, c *Conn, data json.RawMessage) error {
	var req findMessagesRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	msgs, err := g.messenger.FindPrivateMessages(ctx, c.userID, req.ReceiverID)
	if err != nil {
		return err
	}
	return c.Send(ctx, EventMessageHistory, msgs)
}

func (g *Gateway) handleGetMyChats(ctx context.Context, c *Conn, _ json.RawMessage) error {
	chats, err := g.messenger.GetMyChats(ctx, c.userID)
	if err != nil {
		return err
	}
	return c.Send(ctx, EventMyChats, chats)
}

func (g *Gateway) handleSendGroupMessage(ctx context.Context, c *Conn, data json.RawMessage) error {
	var in models.GroupMessageInput
	if err := decode(data, &in); err != nil {
		return err
	}
	_, err := g.messenger.SendGroupMessage(ctx, c.userID, in)
	return err
}

func (g *Gateway) handleFindGroupMessages(ctx context.Context, c *Conn, data json.RawMessage) error {
	var req findGroupMessagesRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	msgs, err := g.messenger.FindGroupMessages(ctx, c.userID, req.GroupID)
	if err != nil {
		return err
	}
	return c.Send(ctx, EventGroupMessageHistory, msgs)
}

func (g *Gateway) handleMarkSeen(ctx context.Context, c *Conn, data json.RawMessage) error {
	var req markSeenRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := g.messenger.MarkSeen(ctx, c.userID, req.MessageID)
	return err
}

func (g *Gateway) handleGetLastSeen(ctx context.Context, c *Conn, data json.RawMessage) error {
	var req lastSeenRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return errors.NewValidationError("userId", "", "must not be empty")
	}

	payload := LastSeenPayload{UserID: req.UserID}
	if g.presence != nil {
		ts, ok, err := g.presence.GetLastSeen(ctx, c.userID, req.UserID)
		if err != nil {
			return err
		}
		if ok {
			payload.LastSeen = &ts
		}
	}
	return c.Send(ctx, EventLastSeen, payload)
}
