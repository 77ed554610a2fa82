package models

import "time"

// Reaction is one user's reaction to a private or group message
type Reaction struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	MessageID   string      `json:"messageId"`
	MessageType MessageKind `json:"messageType"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// SavedMessage is a bookmark. Exactly one of the message references is set.
type SavedMessage struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	PrivateMessageID *string         `json:"privateMessageId,omitempty"`
	GroupMessageID   *string         `json:"groupMessageId,omitempty"`
	SavedAt          time.Time       `json:"savedAt"`
	PrivateMessage   *PrivateMessage `json:"privateMessage,omitempty"`
	GroupMessage     *GroupMessage   `json:"groupMessage,omitempty"`
}

// Kind reports which table the bookmark references
func (s *SavedMessage) Kind() MessageKind {
	if s.GroupMessageID != nil {
		return KindGroup
	}
	return KindPrivate
}

// MutedChat is a mute on a private counterpart or a group
type MutedChat struct {
	UserID     string      `json:"userId"`
	TargetID   string      `json:"targetId"`
	Kind       MessageKind `json:"kind"`
	MutedUntil time.Time   `json:"mutedUntil"`
}

// ActiveAt reports whether the mute still applies at t
func (m *MutedChat) ActiveAt(t time.Time) bool {
	return m.MutedUntil.After(t)
}
