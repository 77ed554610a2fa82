package database

import (
	"context"
	"database/sql"

	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/google/uuid"
)

func scanSavedMessage(row rowScanner) (*models.SavedMessage, error) {
	var (
		s         models.SavedMessage
		privateID sql.NullString
		groupID   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &privateID, &groupID, &s.SavedAt); err != nil {
		return nil, err
	}
	s.PrivateMessageID = stringPtr(privateID)
	s.GroupMessageID = stringPtr(groupID)
	s.SavedAt = s.SavedAt.UTC()
	return &s, nil
}

// SaveMessage bookmarks a message for userID. Saving the same message twice
// returns the existing bookmark.
func (d *Database) SaveMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string) (*models.SavedMessage, error) {
	if err := d.MessageExists(ctx, kind, messageID); err != nil {
		return nil, err
	}

	var privateID, groupID interface{}
	lookupQuery := SelectSavedPrivateQuery
	if kind == models.KindGroup {
		groupID = messageID
		lookupQuery = SelectSavedGroupQuery
	} else {
		privateID = messageID
	}

	if _, err := d.exec(ctx, d.db, InsertSavedMessageQuery,
		uuid.NewString(), userID, privateID, groupID, d.timestamp()); err != nil {
		return nil, errors.NewDatabaseError("save message", err)
	}

	saved, err := scanSavedMessage(d.queryRow(ctx, d.db, lookupQuery, userID, messageID))
	if err != nil {
		return nil, errors.NewDatabaseError("get saved message", err)
	}
	return saved, nil
}

// UnsaveMessage removes one of userID's bookmarks
func (d *Database) UnsaveMessage(ctx context.Context, userID, id string) error {
	result, err := d.exec(ctx, d.db, DeleteSavedMessageQuery, id, userID)
	if err != nil {
		return errors.NewDatabaseError("unsave message", err)
	}
	return affectedOrNotFound(result, "unsave message", "saved message", id)
}

// ListSavedMessages returns userID's bookmarks with the referenced messages
// attached, newest first. Archived group messages are still attached.
func (d *Database) ListSavedMessages(ctx context.Context, userID string) ([]*models.SavedMessage, error) {
	rows, err := d.query(ctx, d.db, SelectSavedMessagesQuery, userID)
	if err != nil {
		return nil, errors.NewDatabaseError("list saved messages", err)
	}

	saved := make([]*models.SavedMessage, 0)
	for rows.Next() {
		s, err := scanSavedMessage(rows)
		if err != nil {
			rows.Close()
			return nil, errors.NewDatabaseError("list saved messages", err)
		}
		saved = append(saved, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.NewDatabaseError("list saved messages", err)
	}
	// release the connection before loading messages
	rows.Close()

	for _, s := range saved {
		switch s.Kind() {
		case models.KindGroup:
			msg, err := d.GetGroupMessage(ctx, *s.GroupMessageID)
			if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
				return nil, err
			}
			s.GroupMessage = msg
		default:
			msg, err := d.GetPrivateMessage(ctx, *s.PrivateMessageID)
			if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
				return nil, err
			}
			s.PrivateMessage = msg
		}
	}
	return saved, nil
}
