package database

import (
	"context"
	"database/sql"
	"fmt"

	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/google/uuid"
)

func scanGroupMessage(row rowScanner) (*models.GroupMessage, error) {
	var (
		msg       models.GroupMessage
		pinnedAt  sql.NullTime
		forwarded sql.NullString
		sender    profileColumns
	)

	dest := []interface{}{
		&msg.ID, &msg.SenderID, &msg.GroupID, &msg.Content, &msg.Type, &msg.CreatedAt,
		&msg.IsSeen, &msg.IsPinned, &pinnedAt, &msg.IsArchived, &forwarded,
	}
	dest = append(dest, sender.dest()...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.PinnedAt = timePtr(pinnedAt)
	msg.ForwardedFromID = stringPtr(forwarded)
	msg.Sender = sender.profile()
	return &msg, nil
}

func (d *Database) queryGroupMessages(ctx context.Context, operation, query string, args ...interface{}) ([]*models.GroupMessage, error) {
	rows, err := d.query(ctx, d.db, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError(operation, err)
	}
	defer rows.Close()

	messages := make([]*models.GroupMessage, 0)
	for rows.Next() {
		msg, err := scanGroupMessage(rows)
		if err != nil {
			return nil, errors.NewDatabaseError(operation, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError(operation, err)
	}
	return messages, nil
}

// CreateGroupMessage persists a message from senderID into a group
func (d *Database) CreateGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error) {
	id := uuid.NewString()

	_, err := d.exec(ctx, d.db, InsertGroupMessageQuery,
		id,
		senderID,
		in.GroupID,
		in.Content,
		string(in.Type),
		d.timestamp(),
		nullableString(in.ForwardedFromID),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("create group message", err)
	}

	return d.GetGroupMessage(ctx, id)
}

// GetGroupMessage loads a message by id, archived or not, so reactions and
// bookmarks can still resolve it
func (d *Database) GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error) {
	msg, err := scanGroupMessage(d.queryRow(ctx, d.db, SelectGroupMessageByIDQuery, id))
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("group message", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get group message", err)
	}
	return msg, nil
}

// FindGroupMessages returns the non-archived history of a group, newest first
func (d *Database) FindGroupMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error) {
	return d.queryGroupMessages(ctx, "find group messages", SelectGroupHistoryQuery, groupID)
}

// SetGroupPinned writes is_pinned and pinned_at in one statement
func (d *Database) SetGroupPinned(ctx context.Context, id string, pinned bool) (*models.GroupMessage, error) {
	var pinnedAt interface{}
	if pinned {
		pinnedAt = d.timestamp()
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, UpdateGroupMessagePinQuery, pinned, pinnedAt, id)
		if err != nil {
			return errors.NewDatabaseError("pin group message", err)
		}
		return affectedOrNotFound(result, "pin group message", "group message", id)
	}, "pin group message")
	if err != nil {
		return nil, err
	}
	return d.GetGroupMessage(ctx, id)
}

// ArchiveGroupMessage soft deletes a group message
func (d *Database) ArchiveGroupMessage(ctx context.Context, id string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, ArchiveGroupMessageQuery, id)
		if err != nil {
			return errors.NewDatabaseError("archive group message", err)
		}
		return affectedOrNotFound(result, "archive group message", "group message", id)
	}, "archive group message")
}

// BulkArchiveGroupMessages archives the listed messages that senderID posted
// and returns how many changed
func (d *Database) BulkArchiveGroupMessages(ctx context.Context, senderID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, senderID)
	for _, id := range ids {
		args = append(args, id)
	}

	var affected int64
	err := retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, fmt.Sprintf(BulkArchiveGroupMessagesQuery, inClause(len(ids))), args...)
		if err != nil {
			return errors.NewDatabaseError("bulk archive group messages", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return errors.NewDatabaseError("bulk archive group messages", err)
		}
		return nil
	}, "bulk archive group messages")
	return affected, err
}

// SearchGroupMessages matches content case-insensitively among non-archived
// messages of groups userID created or belongs to
func (d *Database) SearchGroupMessages(ctx context.Context, userID, query string, limit int) ([]*models.GroupMessage, error) {
	return d.queryGroupMessages(ctx, "search group messages", SearchGroupMessagesQuery,
		likePattern(query), userID, userID, limit)
}

// SearchMessages runs the private and group searches selected by scope. A
// searched partition is never nil, so an empty one still reaches clients as [].
func (d *Database) SearchMessages(ctx context.Context, userID, query string, scope models.SearchScope, limit int) (*models.SearchResult, error) {
	result := &models.SearchResult{}

	if scope == models.SearchAll || scope == models.SearchPrivate {
		private, err := d.SearchPrivateMessages(ctx, userID, query, limit)
		if err != nil {
			return nil, err
		}
		result.Private = append([]*models.PrivateMessage{}, private...)
	}

	if scope == models.SearchAll || scope == models.SearchGroup {
		group, err := d.SearchGroupMessages(ctx, userID, query, limit)
		if err != nil {
			return nil, err
		}
		result.Group = append([]*models.GroupMessage{}, group...)
	}

	return result, nil
}
