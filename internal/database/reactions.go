package database

import (
	"context"
	"fmt"

	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/google/uuid"
)

// messageLookup resolves whether a message of one kind exists
type messageLookup func(d *Database, ctx context.Context, id string) error

// messageLookups has one lookup per message kind
var messageLookups = map[models.MessageKind]messageLookup{
	models.KindPrivate: func(d *Database, ctx context.Context, id string) error {
		_, err := d.GetPrivateMessage(ctx, id)
		return err
	},
	models.KindGroup: func(d *Database, ctx context.Context, id string) error {
		_, err := d.GetGroupMessage(ctx, id)
		return err
	},
}

// MessageExists checks the table selected by kind
func (d *Database) MessageExists(ctx context.Context, kind models.MessageKind, id string) error {
	lookup, ok := messageLookups[kind]
	if !ok {
		return errors.NewValidationError("messageType", string(kind), "unknown message kind")
	}
	return lookup(d, ctx, id)
}

func scanReaction(row rowScanner) (*models.Reaction, error) {
	var r models.Reaction
	if err := row.Scan(&r.ID, &r.UserID, &r.MessageID, &r.MessageType, &r.Content, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// UpsertReaction stores userID's reaction to a message. A second reaction
// from the same user to the same message replaces the first.
func (d *Database) UpsertReaction(ctx context.Context, userID string, kind models.MessageKind, messageID, content string) (*models.Reaction, error) {
	if err := d.MessageExists(ctx, kind, messageID); err != nil {
		return nil, err
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.exec(ctx, d.db, UpsertReactionQuery,
			uuid.NewString(), userID, messageID, string(kind), content, d.timestamp())
		if err != nil {
			return errors.NewDatabaseError("upsert reaction", err)
		}
		return nil
	}, "upsert reaction")
	if err != nil {
		return nil, err
	}

	reaction, err := scanReaction(d.queryRow(ctx, d.db, SelectReactionByKeyQuery, userID, messageID, string(kind)))
	if err != nil {
		return nil, errors.NewDatabaseError("get reaction", err)
	}
	return reaction, nil
}

func (d *Database) GetReaction(ctx context.Context, id string) (*models.Reaction, error) {
	reaction, err := scanReaction(d.queryRow(ctx, d.db, SelectReactionByIDQuery, id))
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("reaction", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get reaction", err)
	}
	return reaction, nil
}

func (d *Database) DeleteReaction(ctx context.Context, id string) error {
	result, err := d.exec(ctx, d.db, DeleteReactionQuery, id)
	if err != nil {
		return errors.NewDatabaseError("delete reaction", err)
	}
	return affectedOrNotFound(result, "delete reaction", "reaction", id)
}

// ListReactions returns the reactions to one message, oldest first
func (d *Database) ListReactions(ctx context.Context, kind models.MessageKind, messageID string) ([]*models.Reaction, error) {
	if _, ok := messageLookups[kind]; !ok {
		return nil, errors.NewValidationError("messageType", string(kind), "unknown message kind")
	}

	rows, err := d.query(ctx, d.db, SelectReactionsForMessageQuery, string(kind), messageID)
	if err != nil {
		return nil, errors.NewDatabaseError("list reactions", err)
	}
	defer rows.Close()

	reactions := make([]*models.Reaction, 0)
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("list reactions", fmt.Errorf("scan: %w", err))
		}
		reactions = append(reactions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list reactions", err)
	}
	return reactions, nil
}
