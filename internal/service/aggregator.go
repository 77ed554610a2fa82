package service

import (
	"context"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/models"
	"collabchat/pkg/notify"
)

// ChatSource lists every private message a user sent or received, newest first
type ChatSource interface {
	ListUserPrivateMessages(ctx context.Context, userID string) ([]*models.PrivateMessage, error)
}

// ChatAggregator builds a user's conversation list from their private history
type ChatAggregator struct {
	source ChatSource
	loc    *time.Location
}

// NewChatAggregator renders chat days in loc, or UTC when loc is nil
func NewChatAggregator(source ChatSource, loc *time.Location) *ChatAggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &ChatAggregator{source: source, loc: loc}
}

func (a *ChatAggregator) GetMyChats(ctx context.Context, userID string) ([]models.ChatEntry, error) {
	msgs, err := a.source.ListUserPrivateMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AggregateChats(userID, msgs, a.loc), nil
}

// AggregateChats collapses msgs, which must be ordered newest first, into one
// entry per counterpart. The first message seen for a counterpart is its
// latest and supplies the entry; later ones only add to the unseen count.
func AggregateChats(userID string, msgs []*models.PrivateMessage, loc *time.Location) []models.ChatEntry {
	chats := make([]models.ChatEntry, 0)
	index := make(map[string]int)

	for _, m := range msgs {
		counterpart := m.Counterpart(userID)

		i, seen := index[counterpart]
		if !seen {
			profile := models.Profile{ID: counterpart}
			if p := m.CounterpartProfile(userID); p != nil {
				profile = *p
			}
			chats = append(chats, models.ChatEntry{
				User:            profile,
				LastMessageAt:   m.CreatedAt,
				Day:             m.CreatedAt.In(loc).Format(constants.DefaultChatDayLayout),
				LastMessage:     notify.Snippet(m.Content, constants.DefaultPushSnippetLength),
				LastMessageType: m.Type,
			})
			i = len(chats) - 1
			index[counterpart] = i
		}

		if m.ReceiverID == userID && m.SenderID != userID && !m.IsSeen {
			chats[i].UnseenCount++
		}
	}

	return chats
}
