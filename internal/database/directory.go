package database

import (
	"context"
	"fmt"

	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/google/uuid"
)

// The users, groups, contacts and devices tables belong to the surrounding
// platform. The messaging core reads them; the write methods below exist so
// the service can be seeded and run on its own.

// UpsertUser creates or replaces a directory entry
func (d *Database) UpsertUser(ctx context.Context, p models.Profile, visibility models.LastSeenVisibility) error {
	if visibility == "" {
		visibility = models.VisibleToEverybody
	}
	if !visibility.Valid() {
		return errors.NewValidationError("lastSeenVisibility", string(visibility), "unknown visibility")
	}

	_, err := d.exec(ctx, d.db, UpsertUserQuery,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.UserName, p.Phone, p.AvatarURL, string(visibility))
	if err != nil {
		return errors.NewDatabaseError("upsert user", err)
	}
	return nil
}

// GetProfileByID returns the public projection of a user
func (d *Database) GetProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := d.queryRow(ctx, d.db, SelectProfileByIDQuery, id).Scan(
		&p.ID, &p.FirstName, &p.MiddleName, &p.LastName, &p.UserName, &p.Phone, &p.AvatarURL)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get profile", err)
	}
	return &p, nil
}

func (d *Database) GetLastSeenVisibility(ctx context.Context, userID string) (models.LastSeenVisibility, error) {
	var v models.LastSeenVisibility
	err := d.queryRow(ctx, d.db, SelectLastSeenVisibilityQuery, userID).Scan(&v)
	if isNoRows(err) {
		return "", errors.NewNotFoundError("user", userID)
	}
	if err != nil {
		return "", errors.NewDatabaseError("get last seen visibility", err)
	}
	return v, nil
}

func (d *Database) SetLastSeenVisibility(ctx context.Context, userID string, v models.LastSeenVisibility) error {
	if !v.Valid() {
		return errors.NewValidationError("lastSeenVisibility", string(v), "unknown visibility")
	}
	result, err := d.exec(ctx, d.db, UpdateLastSeenVisibilityQuery, string(v), userID)
	if err != nil {
		return errors.NewDatabaseError("set last seen visibility", err)
	}
	return affectedOrNotFound(result, "set last seen visibility", "user", userID)
}

// CreateGroup registers a group owned by creatorID and returns its id.
// An empty id is replaced by a new UUID.
func (d *Database) CreateGroup(ctx context.Context, id, name, creatorID string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := d.exec(ctx, d.db, InsertGroupQuery, id, name, creatorID, d.timestamp()); err != nil {
		return "", errors.NewDatabaseError("create group", err)
	}
	return id, nil
}

func (d *Database) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if _, err := d.exec(ctx, d.db, InsertGroupMemberQuery, groupID, userID); err != nil {
		return errors.NewDatabaseError("add group member", err)
	}
	return nil
}

func (d *Database) GroupExists(ctx context.Context, groupID string) (bool, error) {
	var exists bool
	if err := d.queryRow(ctx, d.db, SelectGroupExistsQuery, groupID).Scan(&exists); err != nil {
		return false, errors.NewDatabaseError("check group", err)
	}
	return exists, nil
}

// IsMember reports whether userID created or belongs to groupID
func (d *Database) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var member bool
	if err := d.queryRow(ctx, d.db, SelectIsMemberQuery, groupID, userID, groupID, userID).Scan(&member); err != nil {
		return false, errors.NewDatabaseError("check membership", err)
	}
	return member, nil
}

// GroupMemberIDs lists the creator and members of a group
func (d *Database) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := d.query(ctx, d.db, SelectGroupMemberIDsQuery, groupID, groupID)
	if err != nil {
		return nil, errors.NewDatabaseError("list group members", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDatabaseError("list group members", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list group members", err)
	}
	return ids, nil
}

// AddContact stores a phone number in ownerID's address book. Phones are
// stored with deterministic encryption when enabled so lookups still match.
func (d *Database) AddContact(ctx context.Context, ownerID, phone string) error {
	stored, err := d.encryptor.EncryptForLookupIfEnabled(phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact phone: %w", err)
	}
	if _, err := d.exec(ctx, d.db, InsertContactQuery, ownerID, stored); err != nil {
		return errors.NewDatabaseError("add contact", err)
	}
	return nil
}

// IsContactOf reports whether candidateID's phone is in ownerID's contacts.
// Unknown candidates are never contacts.
func (d *Database) IsContactOf(ctx context.Context, ownerID, candidateID string) (bool, error) {
	var phone string
	err := d.queryRow(ctx, d.db, SelectUserPhoneQuery, candidateID).Scan(&phone)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewDatabaseError("get user phone", err)
	}

	stored, err := d.encryptor.EncryptForLookupIfEnabled(phone)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt contact phone: %w", err)
	}

	var exists bool
	if err := d.queryRow(ctx, d.db, SelectIsContactQuery, ownerID, stored).Scan(&exists); err != nil {
		return false, errors.NewDatabaseError("check contact", err)
	}
	return exists, nil
}

// UpsertDevice registers the push token of a user's device
func (d *Database) UpsertDevice(ctx context.Context, device models.Device) error {
	token, err := d.encryptor.EncryptIfEnabled(device.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt device token: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		if _, err := d.exec(ctx, d.db, UpsertDeviceQuery, device.UserID, token, device.Platform, d.timestamp()); err != nil {
			return errors.NewDatabaseError("upsert device", err)
		}
		return nil
	}, "upsert device")
}

// FindDeviceToken returns the push token of userID; ok is false when the user
// has no registered device. A stored value that does not decrypt is returned
// as is.
func (d *Database) FindDeviceToken(ctx context.Context, userID string) (token string, ok bool, err error) {
	var stored string
	err = d.queryRow(ctx, d.db, SelectDeviceTokenQuery, userID).Scan(&stored)
	if isNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseError("find device token", err)
	}

	token, err = d.encryptor.DecryptIfEnabled(stored)
	if err != nil {
		// Rows written before encryption was switched on hold the plaintext
		// token. It is re-encrypted the next time the device registers.
		return stored, true, nil
	}
	return token, true, nil
}
