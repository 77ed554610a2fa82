package database

import (
	"context"
	"database/sql"
	"fmt"

	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// profileColumns receives a LEFT JOINed user; all columns are NULL when the
// user is unknown to the directory
type profileColumns struct {
	id, firstName, middleName, lastName, userName, phone, avatarURL sql.NullString
}

func (p *profileColumns) dest() []interface{} {
	return []interface{}{&p.id, &p.firstName, &p.middleName, &p.lastName, &p.userName, &p.phone, &p.avatarURL}
}

func (p *profileColumns) profile() *models.Profile {
	if !p.id.Valid {
		return nil
	}
	return &models.Profile{
		ID:         p.id.String,
		FirstName:  p.firstName.String,
		MiddleName: p.middleName.String,
		LastName:   p.lastName.String,
		UserName:   p.userName.String,
		Phone:      p.phone.String,
		AvatarURL:  p.avatarURL.String,
	}
}

func scanPrivateMessage(row rowScanner) (*models.PrivateMessage, error) {
	var (
		msg       models.PrivateMessage
		pinnedAt  sql.NullTime
		forwarded sql.NullString
		sender    profileColumns
		receiver  profileColumns
	)

	dest := []interface{}{
		&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Type, &msg.CreatedAt,
		&msg.IsSeen, &msg.IsPinned, &pinnedAt, &msg.DeletedBySender, &msg.DeletedByReceiver,
		&forwarded,
	}
	dest = append(dest, sender.dest()...)
	dest = append(dest, receiver.dest()...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.PinnedAt = timePtr(pinnedAt)
	msg.ForwardedFromID = stringPtr(forwarded)
	msg.Sender = sender.profile()
	msg.Receiver = receiver.profile()
	return &msg, nil
}

func (d *Database) queryPrivateMessages(ctx context.Context, operation, query string, args ...interface{}) ([]*models.PrivateMessage, error) {
	rows, err := d.query(ctx, d.db, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError(operation, err)
	}
	defer rows.Close()

	messages := make([]*models.PrivateMessage, 0)
	for rows.Next() {
		msg, err := scanPrivateMessage(rows)
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

// CreatePrivateMessage persists a message from senderID. The sender always
// comes from the authenticated caller, never from the input.
// The result carries the public sender and receiver profiles.
func (d *Database) CreatePrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error) {
	id := uuid.NewString()

	_, err := d.exec(ctx, d.db, InsertPrivateMessageQuery,
		id,
		senderID,
		in.ReceiverID,
		in.Content,
		string(in.Type),
		d.timestamp(),
		nullableString(in.ForwardedFromID),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("create private message", err)
	}

	return d.GetPrivateMessage(ctx, id)
}

func (d *Database) GetPrivateMessage(ctx context.Context, id string) (*models.PrivateMessage, error) {
	msg, err := scanPrivateMessage(d.queryRow(ctx, d.db, SelectPrivateMessageByIDQuery, id))
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("message", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get private message", err)
	}
	return msg, nil
}

// FindPrivateMessages returns the two-party history between a and b, newest
// first. The result does not depend on argument order.
func (d *Database) FindPrivateMessages(ctx context.Context, a, b string) ([]*models.PrivateMessage, error) {
	return d.queryPrivateMessages(ctx, "find private messages", SelectConversationQuery, a, b, b, a)
}

// ListUserPrivateMessages returns every private message userID sent or
// received, newest first
func (d *Database) ListUserPrivateMessages(ctx context.Context, userID string) ([]*models.PrivateMessage, error) {
	return d.queryPrivateMessages(ctx, "list user private messages", SelectUserPrivateMessagesQuery, userID, userID)
}

// UpdateMessageSeen marks a private message seen. Repeating it is a no-op.
func (d *Database) UpdateMessageSeen(ctx context.Context, id string) (*models.PrivateMessage, error) {
	err := retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, UpdatePrivateMessageSeenQuery, id)
		if err != nil {
			return errors.NewDatabaseError("update message seen", err)
		}
		return affectedOrNotFound(result, "update message seen", "message", id)
	}, "update message seen")
	if err != nil {
		return nil, err
	}
	return d.GetPrivateMessage(ctx, id)
}

// SetPrivatePinned writes is_pinned and pinned_at in one statement
func (d *Database) SetPrivatePinned(ctx context.Context, id string, pinned bool) (*models.PrivateMessage, error) {
	var pinnedAt interface{}
	if pinned {
		pinnedAt = d.timestamp()
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, UpdatePrivateMessagePinQuery, pinned, pinnedAt, id)
		if err != nil {
			return errors.NewDatabaseError("pin private message", err)
		}
		return affectedOrNotFound(result, "pin private message", "message", id)
	}, "pin private message")
	if err != nil {
		return nil, err
	}
	return d.GetPrivateMessage(ctx, id)
}

// HidePrivateMessage sets the caller's per-party hidden flag
func (d *Database) HidePrivateMessage(ctx context.Context, userID, id string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.exec(ctx, d.db, HidePrivateMessageQuery, userID, userID, id, userID, userID)
		if err != nil {
			return errors.NewDatabaseError("hide private message", err)
		}
		return affectedOrNotFound(result, "hide private message", "message", id)
	}, "hide private message")
}

// DeletePrivateMessage removes the row together with its reactions and
// bookmarks
func (d *Database) DeletePrivateMessage(ctx context.Context, id string) error {
	return d.withTx(ctx, "delete private message", func(tx *sql.Tx) error {
		if err := d.deletePrivateDependents(ctx, tx, []string{id}); err != nil {
			return err
		}

		result, err := d.exec(ctx, tx, DeletePrivateMessageQuery, id)
		if err != nil {
			return errors.NewDatabaseError("delete private message", err)
		}
		return affectedOrNotFound(result, "delete private message", "message", id)
	})
}

// BulkDeletePrivateMessages hard deletes the listed messages that senderID
// sent. IDs of other users' messages are ignored. Returns the deleted IDs.
func (d *Database) BulkDeletePrivateMessages(ctx context.Context, senderID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	deleted := make([]string, 0, len(ids))
	err := d.withTx(ctx, "bulk delete private messages", func(tx *sql.Tx) error {
		args := make([]interface{}, 0, len(ids)+1)
		args = append(args, senderID)
		for _, id := range ids {
			args = append(args, id)
		}

		rows, err := d.query(ctx, tx, fmt.Sprintf(SelectOwnPrivateMessageIDsQuery, inClause(len(ids))), args...)
		if err != nil {
			return errors.NewDatabaseError("bulk delete private messages", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.NewDatabaseError("bulk delete private messages", err)
			}
			deleted = append(deleted, id)
		}
		if err := rows.Close(); err != nil {
			return errors.NewDatabaseError("bulk delete private messages", err)
		}

		if len(deleted) == 0 {
			return nil
		}

		if err := d.deletePrivateDependents(ctx, tx, deleted); err != nil {
			return err
		}
		for _, id := range deleted {
			if _, err := d.exec(ctx, tx, DeletePrivateMessageQuery, id); err != nil {
				return errors.NewDatabaseError("bulk delete private messages", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (d *Database) deletePrivateDependents(ctx context.Context, tx *sql.Tx, ids []string) error {
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, string(models.KindPrivate))
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := d.exec(ctx, tx, fmt.Sprintf(DeleteReactionsForMessagesQuery, inClause(len(ids))), args...); err != nil {
		return errors.NewDatabaseError("delete message reactions", err)
	}
	if _, err := d.exec(ctx, tx, fmt.Sprintf(DeleteSavedForPrivateMessagesQuery, inClause(len(ids))), args[1:]...); err != nil {
		return errors.NewDatabaseError("delete saved references", err)
	}
	return nil
}

// SearchPrivateMessages matches content case-insensitively among messages
// userID sent or received
func (d *Database) SearchPrivateMessages(ctx context.Context, userID, query string, limit int) ([]*models.PrivateMessage, error) {
	return d.queryPrivateMessages(ctx, "search private messages", SearchPrivateMessagesQuery,
		userID, userID, likePattern(query), limit)
}
