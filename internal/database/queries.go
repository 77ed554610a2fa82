package database

// Queries use ? placeholders and are rebound per dialect before execution.

// Private message queries
const (
	privateMessageColumns = `
		m.id, m.sender_id, m.receiver_id, m.content, m.type, m.created_at,
		m.is_seen, m.is_pinned, m.pinned_at, m.deleted_by_sender, m.deleted_by_receiver,
		m.forwarded_from_id,
		s.id, s.first_name, s.middle_name, s.last_name, s.user_name, s.phone, s.avatar_url,
		r.id, r.first_name, r.middle_name, r.last_name, r.user_name, r.phone, r.avatar_url`

	privateMessageFrom = `
		FROM private_messages m
		LEFT JOIN users s ON s.id = m.sender_id
		LEFT JOIN users r ON r.id = m.receiver_id`

	InsertPrivateMessageQuery = `
		INSERT INTO private_messages (
			id, sender_id, receiver_id, content, type, created_at, forwarded_from_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectPrivateMessageByIDQuery = `SELECT` + privateMessageColumns + privateMessageFrom + `
		WHERE m.id = ?`

	SelectConversationQuery = `SELECT` + privateMessageColumns + privateMessageFrom + `
		WHERE (m.sender_id = ? AND m.receiver_id = ?)
		   OR (m.sender_id = ? AND m.receiver_id = ?)
		ORDER BY m.created_at DESC, m.seq DESC`

	SelectUserPrivateMessagesQuery = `SELECT` + privateMessageColumns + privateMessageFrom + `
		WHERE m.sender_id = ? OR m.receiver_id = ?
		ORDER BY m.created_at DESC, m.seq DESC`

	SearchPrivateMessagesQuery = `SELECT` + privateMessageColumns + privateMessageFrom + `
		WHERE (m.sender_id = ? OR m.receiver_id = ?)
		  AND unicode_lower(m.content) LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT ?`

	UpdatePrivateMessageSeenQuery = `
		UPDATE private_messages SET is_seen = TRUE WHERE id = ?
	`

	UpdatePrivateMessagePinQuery = `
		UPDATE private_messages SET is_pinned = ?, pinned_at = ? WHERE id = ?
	`

	HidePrivateMessageQuery = `
		UPDATE private_messages
		SET deleted_by_sender = CASE WHEN sender_id = ? THEN TRUE ELSE deleted_by_sender END,
		    deleted_by_receiver = CASE WHEN receiver_id = ? THEN TRUE ELSE deleted_by_receiver END
		WHERE id = ? AND (sender_id = ? OR receiver_id = ?)
	`

	DeletePrivateMessageQuery = `DELETE FROM private_messages WHERE id = ?`

	SelectOwnPrivateMessageIDsQuery = `
		SELECT id FROM private_messages WHERE sender_id = ? AND id IN (%s)
	`
)

// Group message queries
const (
	groupMessageColumns = `
		m.id, m.sender_id, m.group_id, m.content, m.type, m.created_at,
		m.is_seen, m.is_pinned, m.pinned_at, m.is_archived, m.forwarded_from_id,
		s.id, s.first_name, s.middle_name, s.last_name, s.user_name, s.phone, s.avatar_url`

	groupMessageFrom = `
		FROM group_messages m
		LEFT JOIN users s ON s.id = m.sender_id`

	InsertGroupMessageQuery = `
		INSERT INTO group_messages (
			id, sender_id, group_id, content, type, created_at, forwarded_from_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectGroupMessageByIDQuery = `SELECT` + groupMessageColumns + groupMessageFrom + `
		WHERE m.id = ?`

	SelectGroupHistoryQuery = `SELECT` + groupMessageColumns + groupMessageFrom + `
		WHERE m.group_id = ? AND m.is_archived = FALSE
		ORDER BY m.created_at DESC, m.seq DESC`

	SearchGroupMessagesQuery = `SELECT` + groupMessageColumns + groupMessageFrom + `
		WHERE m.is_archived = FALSE
		  AND unicode_lower(m.content) LIKE ? ESCAPE '\'
		  AND m.group_id IN (
			SELECT id FROM chat_groups WHERE creator_id = ?
			UNION
			SELECT group_id FROM group_members WHERE user_id = ?
		  )
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT ?`

	UpdateGroupMessagePinQuery = `
		UPDATE group_messages SET is_pinned = ?, pinned_at = ? WHERE id = ?
	`

	ArchiveGroupMessageQuery = `
		UPDATE group_messages SET is_archived = TRUE WHERE id = ?
	`

	BulkArchiveGroupMessagesQuery = `
		UPDATE group_messages SET is_archived = TRUE
		WHERE sender_id = ? AND is_archived = FALSE AND id IN (%s)
	`
)

// Reaction queries
const (
	UpsertReactionQuery = `
		INSERT INTO reactions (id, user_id, message_id, message_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, message_id, message_type)
		DO UPDATE SET content = excluded.content, created_at = excluded.created_at
	`

	SelectReactionByKeyQuery = `
		SELECT id, user_id, message_id, message_type, content, created_at
		FROM reactions
		WHERE user_id = ? AND message_id = ? AND message_type = ?
	`

	SelectReactionByIDQuery = `
		SELECT id, user_id, message_id, message_type, content, created_at
		FROM reactions WHERE id = ?
	`

	SelectReactionsForMessageQuery = `
		SELECT id, user_id, message_id, message_type, content, created_at
		FROM reactions
		WHERE message_type = ? AND message_id = ?
		ORDER BY created_at ASC, id ASC
	`

	DeleteReactionQuery = `DELETE FROM reactions WHERE id = ?`

	DeleteReactionsForMessagesQuery = `
		DELETE FROM reactions WHERE message_type = ? AND message_id IN (%s)
	`
)

// Saved message queries
const (
	InsertSavedMessageQuery = `
		INSERT INTO saved_messages (id, user_id, private_message_id, group_message_id, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`

	SelectSavedPrivateQuery = `
		SELECT id, user_id, private_message_id, group_message_id, saved_at
		FROM saved_messages WHERE user_id = ? AND private_message_id = ?
	`

	SelectSavedGroupQuery = `
		SELECT id, user_id, private_message_id, group_message_id, saved_at
		FROM saved_messages WHERE user_id = ? AND group_message_id = ?
	`

	SelectSavedMessagesQuery = `
		SELECT id, user_id, private_message_id, group_message_id, saved_at
		FROM saved_messages WHERE user_id = ?
		ORDER BY saved_at DESC, id ASC
	`

	DeleteSavedMessageQuery = `DELETE FROM saved_messages WHERE id = ? AND user_id = ?`

	DeleteSavedForPrivateMessagesQuery = `
		DELETE FROM saved_messages WHERE private_message_id IN (%s)
	`
)

// Mute queries
const (
	UpsertMutedPrivateChatQuery = `
		INSERT INTO muted_private_chats (user_id, chat_user_id, muted_until)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, chat_user_id)
		DO UPDATE SET muted_until = excluded.muted_until
	`

	UpsertMutedGroupChatQuery = `
		INSERT INTO muted_group_chats (user_id, group_id, muted_until)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, group_id)
		DO UPDATE SET muted_until = excluded.muted_until
	`

	DeleteMutedPrivateChatQuery = `DELETE FROM muted_private_chats WHERE user_id = ? AND chat_user_id = ?`
	DeleteMutedGroupChatQuery   = `DELETE FROM muted_group_chats WHERE user_id = ? AND group_id = ?`

	SelectMutedPrivateChatQuery = `
		SELECT muted_until FROM muted_private_chats WHERE user_id = ? AND chat_user_id = ?
	`
	SelectMutedGroupChatQuery = `
		SELECT muted_until FROM muted_group_chats WHERE user_id = ? AND group_id = ?
	`

	SelectMutedPrivateChatsQuery = `
		SELECT user_id, chat_user_id, muted_until FROM muted_private_chats WHERE user_id = ?
		ORDER BY muted_until DESC
	`
	SelectMutedGroupChatsQuery = `
		SELECT user_id, group_id, muted_until FROM muted_group_chats WHERE user_id = ?
		ORDER BY muted_until DESC
	`

	DeleteExpiredPrivateMutesQuery = `DELETE FROM muted_private_chats WHERE muted_until <= ?`
	DeleteExpiredGroupMutesQuery   = `DELETE FROM muted_group_chats WHERE muted_until <= ?`
)

// Directory queries
const (
	UpsertUserQuery = `
		INSERT INTO users (id, first_name, middle_name, last_name, user_name, phone, avatar_url, last_seen_visibility)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			first_name = excluded.first_name,
			middle_name = excluded.middle_name,
			last_name = excluded.last_name,
			user_name = excluded.user_name,
			phone = excluded.phone,
			avatar_url = excluded.avatar_url,
			last_seen_visibility = excluded.last_seen_visibility
	`

	SelectProfileByIDQuery = `
		SELECT id, first_name, middle_name, last_name, user_name, phone, avatar_url
		FROM users WHERE id = ?
	`

	SelectLastSeenVisibilityQuery = `SELECT last_seen_visibility FROM users WHERE id = ?`

	UpdateLastSeenVisibilityQuery = `UPDATE users SET last_seen_visibility = ? WHERE id = ?`

	InsertGroupQuery = `
		INSERT INTO chat_groups (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)
	`

	InsertGroupMemberQuery = `
		INSERT INTO group_members (group_id, user_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`

	SelectIsMemberQuery = `
		SELECT EXISTS (
			SELECT 1 FROM chat_groups WHERE id = ? AND creator_id = ?
			UNION
			SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?
		)
	`

	SelectGroupExistsQuery = `SELECT EXISTS (SELECT 1 FROM chat_groups WHERE id = ?)`

	SelectGroupMemberIDsQuery = `
		SELECT creator_id FROM chat_groups WHERE id = ?
		UNION
		SELECT user_id FROM group_members WHERE group_id = ?
	`

	InsertContactQuery = `
		INSERT INTO contacts (owner_id, contact_phone) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`

	SelectIsContactQuery = `
		SELECT EXISTS (SELECT 1 FROM contacts WHERE owner_id = ? AND contact_phone = ?)
	`

	SelectUserPhoneQuery = `SELECT phone FROM users WHERE id = ?`

	UpsertDeviceQuery = `
		INSERT INTO devices (user_id, token, platform, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			token = excluded.token,
			platform = excluded.platform,
			updated_at = excluded.updated_at
	`

	SelectDeviceTokenQuery = `SELECT token FROM devices WHERE user_id = ?`
)
