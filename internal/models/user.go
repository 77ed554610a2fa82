package models

import (
	"strings"
	"time"
)

// LastSeenVisibility is a user's policy for disclosing their last-seen time
type LastSeenVisibility string

const (
	VisibleToEverybody  LastSeenVisibility = "Everybody"
	VisibleToNobody     LastSeenVisibility = "Nobody"
	VisibleToMyContacts LastSeenVisibility = "MyContacts"
)

// Valid reports whether v is a known policy
func (v LastSeenVisibility) Valid() bool {
	switch v {
	case VisibleToEverybody, VisibleToNobody, VisibleToMyContacts:
		return true
	}
	return false
}

// Profile is the public-safe projection of a user used to decorate payloads
type Profile struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName"`
	UserName   string `json:"userName,omitempty"`
	Phone      string `json:"phone"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// DisplayName joins the non-empty name parts, falling back to the user name
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return p.UserName
	}
	return strings.Join(parts, " ")
}

// Device is a push target registered by a user
type Device struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatEntry is one row of a user's conversation list
type ChatEntry struct {
	User            Profile     `json:"user"`
	LastMessageAt   time.Time   `json:"lastMessageAt"`
	Day             string      `json:"day"`
	LastMessage     string      `json:"lastMessage"`
	LastMessageType MessageType `json:"lastMessageType"`
	UnseenCount     int         `json:"unseenCount"`
}
