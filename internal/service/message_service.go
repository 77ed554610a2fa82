package service

import (
	"context"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/models"
	"collabchat/internal/validation"

	"github.com/sirupsen/logrus"
)

// PrivateMessageStore persists two-party messages
type PrivateMessageStore interface {
	CreatePrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error)
	GetPrivateMessage(ctx context.Context, id string) (*models.PrivateMessage, error)
	FindPrivateMessages(ctx context.Context, a, b string) ([]*models.PrivateMessage, error)
	ListUserPrivateMessages(ctx context.Context, userID string) ([]*models.PrivateMessage, error)
	UpdateMessageSeen(ctx context.Context, id string) (*models.PrivateMessage, error)
	SetPrivatePinned(ctx context.Context, id string, pinned bool) (*models.PrivateMessage, error)
	HidePrivateMessage(ctx context.Context, userID, id string) error
	DeletePrivateMessage(ctx context.Context, id string) error
	BulkDeletePrivateMessages(ctx context.Context, senderID string, ids []string) ([]string, error)
}

// GroupMessageStore persists group messages
type GroupMessageStore interface {
	CreateGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error)
	GetGroupMessage(ctx context.Context, id string) (*models.GroupMessage, error)
	FindGroupMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error)
	SetGroupPinned(ctx context.Context, id string, pinned bool) (*models.GroupMessage, error)
	ArchiveGroupMessage(ctx context.Context, id string) error
	BulkArchiveGroupMessages(ctx context.Context, senderID string, ids []string) (int64, error)
	SearchMessages(ctx context.Context, userID, query string, scope models.SearchScope, limit int) (*models.SearchResult, error)
}

// ReactionStore persists reactions and bookmarks
type ReactionStore interface {
	UpsertReaction(ctx context.Context, userID string, kind models.MessageKind, messageID, content string) (*models.Reaction, error)
	GetReaction(ctx context.Context, id string) (*models.Reaction, error)
	DeleteReaction(ctx context.Context, id string) error
	ListReactions(ctx context.Context, kind models.MessageKind, messageID string) ([]*models.Reaction, error)
	SaveMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string) (*models.SavedMessage, error)
	UnsaveMessage(ctx context.Context, userID, id string) error
	ListSavedMessages(ctx context.Context, userID string) ([]*models.SavedMessage, error)
}

// MuteStore persists conversation mutes
type MuteStore interface {
	MutePrivateChat(ctx context.Context, userID, chatUserID string, until time.Time) error
	UnmutePrivateChat(ctx context.Context, userID, chatUserID string) error
	MuteGroupChat(ctx context.Context, userID, groupID string, until time.Time) error
	UnmuteGroupChat(ctx context.Context, userID, groupID string) error
	ListMutedChats(ctx context.Context, userID string) ([]*models.MutedChat, error)
}

// Directory answers user, group membership and device questions owned by
// the surrounding platform
type Directory interface {
	GetProfileByID(ctx context.Context, id string) (*models.Profile, error)
	GroupExists(ctx context.Context, groupID string) (bool, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
	UpsertDevice(ctx context.Context, device models.Device) error
}

// Store is everything the messaging service needs from persistence.
// *database.Database satisfies it.
type Store interface {
	PrivateMessageStore
	GroupMessageStore
	ReactionStore
	MuteStore
	Directory
}

// MessageService applies the authorization rules of the messaging core,
// persists through the Store and hands new messages to Delivery. Both the
// realtime gateway and the REST API call it.
type MessageService struct {
	store    Store
	delivery *Delivery
	chats    *ChatAggregator
	logger   *logrus.Logger
	now      func() time.Time
}

func NewMessageService(store Store, delivery *Delivery, chats *ChatAggregator, logger *logrus.Logger) *MessageService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MessageService{
		store:    store,
		delivery: delivery,
		chats:    chats,
		logger:   logger,
		now:      time.Now,
	}
}

// SendPrivateMessage stores a message from senderID and delivers it to the
// receiver. The sender always comes from the authenticated caller.
func (s *MessageService) SendPrivateMessage(ctx context.Context, senderID string, in models.PrivateMessageInput) (*models.PrivateMessage, error) {
	if err := validation.ValidateID("receiverId", in.ReceiverID); err != nil {
		return nil, err
	}
	if err := validation.ValidateContent(in.Content); err != nil {
		return nil, err
	}
	msgType, err := validation.NormalizeMessageType(in.Type)
	if err != nil {
		return nil, err
	}
	in.Type = msgType

	if _, err := s.store.GetProfileByID(ctx, in.ReceiverID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreatePrivateMessage(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	outcome := s.delivery.DeliverPrivate(ctx, msg)
	s.logger.WithFields(messageFields(ctx, msg.SenderID, LogFieldReceiverID, msg.ReceiverID, msg.ID)).
		WithField(LogFieldDelivery, outcome).
		Debug("Private message stored")
	return msg, nil
}

// FindPrivateMessages returns the conversation between userID and otherID,
// newest first
func (s *MessageService) FindPrivateMessages(ctx context.Context, userID, otherID string) ([]*models.PrivateMessage, error) {
	if err := validation.ValidateID("receiverId", otherID); err != nil {
		return nil, err
	}
	return s.store.FindPrivateMessages(ctx, userID, otherID)
}

// MarkSeen marks a message seen by its receiver and tells the sender when
// they are online. Repeating it is a no-op.
func (s *MessageService) MarkSeen(ctx context.Context, userID, messageID string) (*models.PrivateMessage, error) {
	msg, err := s.privateMessageFor(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != userID {
		return nil, errors.NewAuthorizationError("message", messageID)
	}
	if msg.IsSeen {
		return msg, nil
	}

	updated, err := s.store.UpdateMessageSeen(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if updated.SenderID != userID {
		s.delivery.NotifyLive(ctx, updated.SenderID, EventMessageSeen, updated)
	}
	return updated, nil
}

// PinPrivateMessage pins or unpins a message for both parties
func (s *MessageService) PinPrivateMessage(ctx context.Context, userID, messageID string, pinned bool) (*models.PrivateMessage, error) {
	if _, err := s.privateMessageFor(ctx, userID, messageID); err != nil {
		return nil, err
	}
	return s.store.SetPrivatePinned(ctx, messageID, pinned)
}

// HidePrivateMessage hides a message from userID only
func (s *MessageService) HidePrivateMessage(ctx context.Context, userID, messageID string) error {
	if _, err := s.privateMessageFor(ctx, userID, messageID); err != nil {
		return err
	}
	return s.store.HidePrivateMessage(ctx, userID, messageID)
}

// DeletePrivateMessage hard deletes a message. Only its sender may do so.
func (s *MessageService) DeletePrivateMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.privateMessageFor(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return errors.NewAuthorizationError("message", messageID)
	}
	return s.store.DeletePrivateMessage(ctx, messageID)
}

// BulkDeletePrivateMessages deletes the listed messages userID sent and
// returns the ids actually removed
func (s *MessageService) BulkDeletePrivateMessages(ctx context.Context, userID string, ids []string) ([]string, error) {
	if err := validation.ValidateIDList("ids", ids, constants.MaxBulkDeleteIDs); err != nil {
		return nil, err
	}
	return s.store.BulkDeletePrivateMessages(ctx, userID, ids)
}

// SendGroupMessage stores a message in a group userID belongs to and fans it
// out to the other members
func (s *MessageService) SendGroupMessage(ctx context.Context, senderID string, in models.GroupMessageInput) (*models.GroupMessage, error) {
	if err := validation.ValidateID("groupId", in.GroupID); err != nil {
		return nil, err
	}
	if err := validation.ValidateContent(in.Content); err != nil {
		return nil, err
	}
	msgType, err := validation.NormalizeMessageType(in.Type)
	if err != nil {
		return nil, err
	}
	in.Type = msgType

	if err := s.requireMember(ctx, in.GroupID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateGroupMessage(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, msg)
	return msg, nil
}

func (s *MessageService) fanOut(ctx context.Context, msg *models.GroupMessage) {
	memberIDs, err := s.store.GroupMemberIDs(ctx, msg.GroupID)
	if err != nil {
		errors.NewLogger(s.logger).LogError(err, "Failed to list group members for delivery",
			logrus.Fields{LogFieldGroupID: msg.GroupID, LogFieldMessageID: msg.ID})
		return
	}

	outcomes := s.delivery.DeliverGroup(ctx, msg, memberIDs)
	s.logger.WithFields(messageFields(ctx, msg.SenderID, LogFieldGroupID, msg.GroupID, msg.ID)).
		WithField(LogFieldCount, len(outcomes)).
		Debug("Group message stored")
}

// FindGroupMessages returns a group's unarchived history, newest first
func (s *MessageService) FindGroupMessages(ctx context.Context, userID, groupID string) ([]*models.GroupMessage, error) {
	if err := validation.ValidateID("groupId", groupID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.store.FindGroupMessages(ctx, groupID)
}

// PinGroupMessage pins or unpins a group message for every member
func (s *MessageService) PinGroupMessage(ctx context.Context, userID, messageID string, pinned bool) (*models.GroupMessage, error) {
	msg, err := s.groupMessageFor(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.Visibility().VisibleTo(userID) {
		return nil, errors.NewNotFoundError("group message", messageID)
	}
	return s.store.SetGroupPinned(ctx, messageID, pinned)
}

// ArchiveGroupMessage soft deletes a group message. Only its sender may do so.
func (s *MessageService) ArchiveGroupMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.groupMessageFor(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return errors.NewAuthorizationError("group message", messageID)
	}
	return s.store.ArchiveGroupMessage(ctx, messageID)
}

// BulkArchiveGroupMessages archives the listed messages userID sent
func (s *MessageService) BulkArchiveGroupMessages(ctx context.Context, userID string, ids []string) (int64, error) {
	if err := validation.ValidateIDList("ids", ids, constants.MaxBulkDeleteIDs); err != nil {
		return 0, err
	}
	return s.store.BulkArchiveGroupMessages(ctx, userID, ids)
}

// ForwardMessage copies a message the caller can read into another
// conversation. The copy is an independent row that records its source.
func (s *MessageService) ForwardMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string, target models.ForwardTarget) (interface{}, error) {
	if err := validation.ValidateID("messageId", messageID); err != nil {
		return nil, err
	}
	if (target.ReceiverID == "") == (target.GroupID == "") {
		return nil, errors.NewValidationError("target", "", "exactly one of receiverId and groupId is required")
	}

	var content string
	var msgType models.MessageType
	switch kind {
	case models.KindPrivate:
		src, err := s.privateMessageFor(ctx, userID, messageID)
		if err != nil {
			return nil, err
		}
		if !src.Visibility().VisibleTo(userID) {
			return nil, errors.NewNotFoundError("message", messageID)
		}
		content, msgType = src.Content, src.Type
	case models.KindGroup:
		src, err := s.groupMessageFor(ctx, userID, messageID)
		if err != nil {
			return nil, err
		}
		if !src.Visibility().VisibleTo(userID) {
			return nil, errors.NewNotFoundError("group message", messageID)
		}
		content, msgType = src.Content, src.Type
	default:
		return nil, errors.NewValidationError("messageType", string(kind), "unknown message kind")
	}

	source := messageID
	if target.ReceiverID != "" {
		return s.SendPrivateMessage(ctx, userID, models.PrivateMessageInput{
			ReceiverID:      target.ReceiverID,
			Content:         content,
			Type:            msgType,
			ForwardedFromID: &source,
		})
	}
	return s.SendGroupMessage(ctx, userID, models.GroupMessageInput{
		GroupID:         target.GroupID,
		Content:         content,
		Type:            msgType,
		ForwardedFromID: &source,
	})
}

// Search finds messages visible to userID whose content contains query
func (s *MessageService) Search(ctx context.Context, userID, query string, scope models.SearchScope, limit int) (*models.SearchResult, error) {
	q, err := validation.NormalizeSearchQuery(query)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = constants.DefaultSearchLimit
	case limit > constants.MaxSearchLimit:
		limit = constants.MaxSearchLimit
	}
	return s.store.SearchMessages(ctx, userID, q, scope, limit)
}

// React sets userID's reaction on a message, replacing any previous one
func (s *MessageService) React(ctx context.Context, userID string, kind models.MessageKind, messageID, content string) (*models.Reaction, error) {
	if err := validation.ValidateReaction(content); err != nil {
		return nil, err
	}
	if err := s.authorizeMessage(ctx, userID, kind, messageID); err != nil {
		return nil, err
	}
	return s.store.UpsertReaction(ctx, userID, kind, messageID, content)
}

// RemoveReaction deletes a reaction owned by userID
func (s *MessageService) RemoveReaction(ctx context.Context, userID, reactionID string) error {
	reaction, err := s.store.GetReaction(ctx, reactionID)
	if err != nil {
		return err
	}
	if reaction.UserID != userID {
		return errors.NewAuthorizationError("reaction", reactionID)
	}
	return s.store.DeleteReaction(ctx, reactionID)
}

func (s *MessageService) ListReactions(ctx context.Context, userID string, kind models.MessageKind, messageID string) ([]*models.Reaction, error) {
	if err := s.authorizeMessage(ctx, userID, kind, messageID); err != nil {
		return nil, err
	}
	return s.store.ListReactions(ctx, kind, messageID)
}

// SaveMessage bookmarks a message the caller can read
func (s *MessageService) SaveMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string) (*models.SavedMessage, error) {
	if err := s.authorizeMessage(ctx, userID, kind, messageID); err != nil {
		return nil, err
	}
	return s.store.SaveMessage(ctx, userID, kind, messageID)
}

func (s *MessageService) UnsaveMessage(ctx context.Context, userID, savedID string) error {
	if err := validation.ValidateID("id", savedID); err != nil {
		return err
	}
	return s.store.UnsaveMessage(ctx, userID, savedID)
}

func (s *MessageService) ListSavedMessages(ctx context.Context, userID string) ([]*models.SavedMessage, error) {
	return s.store.ListSavedMessages(ctx, userID)
}

// MuteUser silences offline pushes from chatUserID until the given time
func (s *MessageService) MuteUser(ctx context.Context, userID, chatUserID string, until time.Time) error {
	if err := validation.ValidateID("userId", chatUserID); err != nil {
		return err
	}
	if err := validation.ValidateMuteUntil(until, s.now()); err != nil {
		return err
	}
	if _, err := s.store.GetProfileByID(ctx, chatUserID); err != nil {
		return err
	}
	return s.store.MutePrivateChat(ctx, userID, chatUserID, until)
}

func (s *MessageService) UnmuteUser(ctx context.Context, userID, chatUserID string) error {
	if err := validation.ValidateID("userId", chatUserID); err != nil {
		return err
	}
	return s.store.UnmutePrivateChat(ctx, userID, chatUserID)
}

// MuteGroup silences offline pushes from a group the caller belongs to
func (s *MessageService) MuteGroup(ctx context.Context, userID, groupID string, until time.Time) error {
	if err := validation.ValidateID("groupId", groupID); err != nil {
		return err
	}
	if err := validation.ValidateMuteUntil(until, s.now()); err != nil {
		return err
	}
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return err
	}
	return s.store.MuteGroupChat(ctx, userID, groupID, until)
}

func (s *MessageService) UnmuteGroup(ctx context.Context, userID, groupID string) error {
	if err := validation.ValidateID("groupId", groupID); err != nil {
		return err
	}
	return s.store.UnmuteGroupChat(ctx, userID, groupID)
}

func (s *MessageService) ListMutedChats(ctx context.Context, userID string) ([]*models.MutedChat, error) {
	return s.store.ListMutedChats(ctx, userID)
}

// GetMyChats returns userID's conversation list
func (s *MessageService) GetMyChats(ctx context.Context, userID string) ([]models.ChatEntry, error) {
	return s.chats.GetMyChats(ctx, userID)
}

// RegisterDevice records the push token of the caller's device
func (s *MessageService) RegisterDevice(ctx context.Context, userID, token, platform string) error {
	if err := validation.ValidateID("platform", platform); err != nil {
		return err
	}
	if token == "" {
		return errors.NewValidationError("token", "", "must not be empty")
	}
	return s.store.UpsertDevice(ctx, models.Device{UserID: userID, Token: token, Platform: platform})
}

// privateMessageFor loads a message and requires userID to be a party to it
func (s *MessageService) privateMessageFor(ctx context.Context, userID, messageID string) (*models.PrivateMessage, error) {
	if err := validation.ValidateID("messageId", messageID); err != nil {
		return nil, err
	}
	msg, err := s.store.GetPrivateMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsParty(userID) {
		return nil, errors.NewAuthorizationError("message", messageID)
	}
	return msg, nil
}

// groupMessageFor loads a group message, archived ones included, and requires
// userID to belong to its group
func (s *MessageService) groupMessageFor(ctx context.Context, userID, messageID string) (*models.GroupMessage, error) {
	if err := validation.ValidateID("messageId", messageID); err != nil {
		return nil, err
	}
	msg, err := s.store.GetGroupMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.IsMember(ctx, msg.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errors.NewAuthorizationError("group message", messageID)
	}
	return msg, nil
}

// authorizeMessage dispatches on kind to the matching access check
func (s *MessageService) authorizeMessage(ctx context.Context, userID string, kind models.MessageKind, messageID string) error {
	switch kind {
	case models.KindPrivate:
		_, err := s.privateMessageFor(ctx, userID, messageID)
		return err
	case models.KindGroup:
		_, err := s.groupMessageFor(ctx, userID, messageID)
		return err
	}
	return errors.NewValidationError("messageType", string(kind), "unknown message kind")
}

func (s *MessageService) requireMember(ctx context.Context, groupID, userID string) error {
	exists, err := s.store.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NewNotFoundError("group", groupID)
	}

	member, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return errors.NewAuthorizationError("group", groupID)
	}
	return nil
}
