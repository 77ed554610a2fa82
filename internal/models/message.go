package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType is the payload kind of a chat message
type MessageType string

const (
	MessageTypeText  MessageType = "Text"
	MessageTypeVideo MessageType = "Video"
	MessageTypeAudio MessageType = "Audio"
)

// Valid reports whether t is one of the supported message types
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeVideo, MessageTypeAudio:
		return true
	}
	return false
}

// MessageKind tags which message table a reference points at
type MessageKind string

const (
	KindPrivate MessageKind = "PrivateMessage"
	KindGroup   MessageKind = "GroupMessage"
)

// ParseMessageKind accepts the canonical names and the short aliases used in URLs
func ParseMessageKind(s string) (MessageKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "privatemessage", "private":
		return KindPrivate, nil
	case "groupmessage", "group":
		return KindGroup, nil
	}
	return "", fmt.Errorf("unknown message kind %q", s)
}

// VisibilityKind enumerates how a message is hidden, if at all
type VisibilityKind int

const (
	Visible VisibilityKind = iota
	ArchivedForAll
	HiddenFor
)

func (k VisibilityKind) String() string {
	switch k {
	case Visible:
		return "visible"
	case ArchivedForAll:
		return "archived"
	case HiddenFor:
		return "hidden"
	default:
		return "unknown"
	}
}

func (k VisibilityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Visibility is derived from the stored flags of a message.
// HiddenFrom is only populated when Kind is HiddenFor.
type Visibility struct {
	Kind       VisibilityKind `json:"kind"`
	HiddenFrom []string       `json:"hiddenFrom,omitempty"`
}

// VisibleTo reports whether userID should see the message
func (v Visibility) VisibleTo(userID string) bool {
	switch v.Kind {
	case ArchivedForAll:
		return false
	case HiddenFor:
		for _, id := range v.HiddenFrom {
			if id == userID {
				return false
			}
		}
	}
	return true
}

// PrivateMessage is a directed message between two users
type PrivateMessage struct {
	ID                string      `json:"id"`
	SenderID          string      `json:"senderId"`
	ReceiverID        string      `json:"receiverId"`
	Content           string      `json:"content"`
	Type              MessageType `json:"type"`
	CreatedAt         time.Time   `json:"createdAt"`
	IsSeen            bool        `json:"isSeen"`
	IsPinned          bool        `json:"isPinned"`
	PinnedAt          *time.Time  `json:"pinnedAt"`
	DeletedBySender   bool        `json:"deletedBySender"`
	DeletedByReceiver bool        `json:"deletedByReceiver"`
	ForwardedFromID   *string     `json:"forwardedFromId,omitempty"`
	Sender            *Profile    `json:"sender,omitempty"`
	Receiver          *Profile    `json:"receiver,omitempty"`
}

// IsParty reports whether userID sent or received the message
func (m *PrivateMessage) IsParty(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the other party relative to userID
func (m *PrivateMessage) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// CounterpartProfile returns the joined profile of the other party, if loaded
func (m *PrivateMessage) CounterpartProfile(userID string) *Profile {
	if m.SenderID == userID {
		return m.Receiver
	}
	return m.Sender
}

// MarshalJSON adds the derived visibility next to the stored flags
func (m PrivateMessage) MarshalJSON() ([]byte, error) {
	type plain PrivateMessage
	return json.Marshal(struct {
		plain
		Visibility Visibility `json:"visibility"`
	}{plain(m), m.Visibility()})
}

func (m *PrivateMessage) Visibility() Visibility {
	var hidden []string
	if m.DeletedBySender {
		hidden = append(hidden, m.SenderID)
	}
	if m.DeletedByReceiver {
		hidden = append(hidden, m.ReceiverID)
	}
	if len(hidden) == 0 {
		return Visibility{Kind: Visible}
	}
	return Visibility{Kind: HiddenFor, HiddenFrom: hidden}
}

// GroupMessage is a message posted to a group. Deletion archives it.
type GroupMessage struct {
	ID              string      `json:"id"`
	SenderID        string      `json:"senderId"`
	GroupID         string      `json:"groupId"`
	Content         string      `json:"content"`
	Type            MessageType `json:"type"`
	CreatedAt       time.Time   `json:"createdAt"`
	IsSeen          bool        `json:"isSeen"`
	IsPinned        bool        `json:"isPinned"`
	PinnedAt        *time.Time  `json:"pinnedAt"`
	IsArchived      bool        `json:"isArchived"`
	ForwardedFromID *string     `json:"forwardedFromId,omitempty"`
	Sender          *Profile    `json:"sender,omitempty"`
}

func (m GroupMessage) MarshalJSON() ([]byte, error) {
	type plain GroupMessage
	return json.Marshal(struct {
		plain
		Visibility Visibility `json:"visibility"`
	}{plain(m), m.Visibility()})
}

func (m *GroupMessage) Visibility() Visibility {
	if m.IsArchived {
		return Visibility{Kind: ArchivedForAll}
	}
	return Visibility{Kind: Visible}
}

// PrivateMessageInput is the client-supplied part of a new private message.
// The sender always comes from the authenticated caller.
type PrivateMessageInput struct {
	ReceiverID      string      `json:"receiverId"`
	Content         string      `json:"content"`
	Type            MessageType `json:"type"`
	ForwardedFromID *string     `json:"-"`
}

// GroupMessageInput is the client-supplied part of a new group message
type GroupMessageInput struct {
	GroupID         string      `json:"groupId"`
	Content         string      `json:"content"`
	Type            MessageType `json:"type"`
	ForwardedFromID *string     `json:"-"`
}

// ForwardTarget names the conversation a message is forwarded into.
// Exactly one of ReceiverID and GroupID is set.
type ForwardTarget struct {
	ReceiverID string `json:"receiverId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
}

// SearchScope restricts which message kinds a search covers
type SearchScope string

const (
	SearchPrivate SearchScope = "private"
	SearchGroup   SearchScope = "group"
	SearchAll     SearchScope = "all"
)

// ParseSearchScope defaults an empty scope to SearchAll
func ParseSearchScope(s string) (SearchScope, error) {
	switch SearchScope(strings.ToLower(s)) {
	case "", SearchAll:
		return SearchAll, nil
	case SearchPrivate:
		return SearchPrivate, nil
	case SearchGroup:
		return SearchGroup, nil
	}
	return "", fmt.Errorf("unknown search scope %q", s)
}

// SearchResult partitions matches by message kind. A nil partition was not
// searched; an empty one was searched and matched nothing.
type SearchResult struct {
	Private []*PrivateMessage `json:"private"`
	Group   []*GroupMessage   `json:"group"`
}

// MarshalJSON leaves out only the partitions the scope excluded
func (r SearchResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 2)
	if r.Private != nil {
		out["private"] = r.Private
	}
	if r.Group != nil {
		out["group"] = r.Group
	}
	return json.Marshal(out)
}
