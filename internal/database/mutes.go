package database

import (
	"context"
	"sort"
	"time"

	"collabchat/internal/errors"
	"collabchat/internal/models"
)

type muteQueries struct {
	upsert, remove, lookup string
}

var muteQueriesByKind = map[models.MessageKind]muteQueries{
	models.KindPrivate: {UpsertMutedPrivateChatQuery, DeleteMutedPrivateChatQuery, SelectMutedPrivateChatQuery},
	models.KindGroup:   {UpsertMutedGroupChatQuery, DeleteMutedGroupChatQuery, SelectMutedGroupChatQuery},
}

func (d *Database) mute(ctx context.Context, kind models.MessageKind, userID, targetID string, until time.Time) error {
	q := muteQueriesByKind[kind]
	return retryableDBOperationNoReturn(ctx, func() error {
		if _, err := d.exec(ctx, d.db, q.upsert, userID, targetID, normalizeTime(until)); err != nil {
			return errors.NewDatabaseError("mute chat", err)
		}
		return nil
	}, "mute chat")
}

func (d *Database) unmute(ctx context.Context, kind models.MessageKind, userID, targetID string) error {
	q := muteQueriesByKind[kind]
	if _, err := d.exec(ctx, d.db, q.remove, userID, targetID); err != nil {
		return errors.NewDatabaseError("unmute chat", err)
	}
	return nil
}

func (d *Database) isMuted(ctx context.Context, kind models.MessageKind, userID, targetID string, at time.Time) (bool, error) {
	q := muteQueriesByKind[kind]
	m := models.MutedChat{UserID: userID, TargetID: targetID, Kind: kind}
	err := d.queryRow(ctx, d.db, q.lookup, userID, targetID).Scan(&m.MutedUntil)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewDatabaseError("check mute", err)
	}
	return m.ActiveAt(at), nil
}

// MutePrivateChat mutes chatUserID for userID until the given time,
// overwriting any existing mute
func (d *Database) MutePrivateChat(ctx context.Context, userID, chatUserID string, until time.Time) error {
	return d.mute(ctx, models.KindPrivate, userID, chatUserID, until)
}

func (d *Database) UnmutePrivateChat(ctx context.Context, userID, chatUserID string) error {
	return d.unmute(ctx, models.KindPrivate, userID, chatUserID)
}

// MuteGroupChat mutes groupID for userID until the given time, overwriting
// any existing mute
func (d *Database) MuteGroupChat(ctx context.Context, userID, groupID string, until time.Time) error {
	return d.mute(ctx, models.KindGroup, userID, groupID, until)
}

func (d *Database) UnmuteGroupChat(ctx context.Context, userID, groupID string) error {
	return d.unmute(ctx, models.KindGroup, userID, groupID)
}

// IsPrivateChatMuted reports whether userID has an unexpired mute on chatUserID at t
func (d *Database) IsPrivateChatMuted(ctx context.Context, userID, chatUserID string, at time.Time) (bool, error) {
	return d.isMuted(ctx, models.KindPrivate, userID, chatUserID, at)
}

// IsGroupChatMuted reports whether userID has an unexpired mute on groupID at t
func (d *Database) IsGroupChatMuted(ctx context.Context, userID, groupID string, at time.Time) (bool, error) {
	return d.isMuted(ctx, models.KindGroup, userID, groupID, at)
}

// ListMutedChats returns every mute row of userID, expired ones included
func (d *Database) ListMutedChats(ctx context.Context, userID string) ([]*models.MutedChat, error) {
	mutes := make([]*models.MutedChat, 0)
	for kind, query := range map[models.MessageKind]string{
		models.KindPrivate: SelectMutedPrivateChatsQuery,
		models.KindGroup:   SelectMutedGroupChatsQuery,
	} {
		rows, err := d.query(ctx, d.db, query, userID)
		if err != nil {
			return nil, errors.NewDatabaseError("list muted chats", err)
		}
		for rows.Next() {
			m := models.MutedChat{Kind: kind}
			if err := rows.Scan(&m.UserID, &m.TargetID, &m.MutedUntil); err != nil {
				rows.Close()
				return nil, errors.NewDatabaseError("list muted chats", err)
			}
			m.MutedUntil = m.MutedUntil.UTC()
			mutes = append(mutes, &m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errors.NewDatabaseError("list muted chats", err)
		}
	}

	sort.Slice(mutes, func(i, j int) bool {
		return mutes[i].MutedUntil.After(mutes[j].MutedUntil)
	})
	return mutes, nil
}

// DeleteExpiredMutes removes mutes that ended at or before the given time
func (d *Database) DeleteExpiredMutes(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, query := range []string{DeleteExpiredPrivateMutesQuery, DeleteExpiredGroupMutesQuery} {
		result, err := d.exec(ctx, d.db, query, normalizeTime(before))
		if err != nil {
			return total, errors.NewDatabaseError("delete expired mutes", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, errors.NewDatabaseError("delete expired mutes", err)
		}
		total += n
	}
	return total, nil
}
