package database

import (
	"context"
	"testing"
	"time"

	"collabchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutePrivateChat_UpsertAndExpiry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := testEpoch

	require.NoError(t, db.MutePrivateChat(ctx, "alice", "bob", now.Add(time.Hour)))

	muted, err := db.IsPrivateChatMuted(ctx, "alice", "bob", now)
	require.NoError(t, err)
	assert.True(t, muted)

	// muting again overwrites instead of duplicating
	require.NoError(t, db.MutePrivateChat(ctx, "alice", "bob", now.Add(-time.Minute)))

	muted, err = db.IsPrivateChatMuted(ctx, "alice", "bob", now)
	require.NoError(t, err)
	assert.False(t, muted, "a mute in the past reads as not muted")

	mutes, err := db.ListMutedChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	assert.True(t, mutes[0].MutedUntil.Equal(now.Add(-time.Minute)))

	// the mute is directional
	muted, err = db.IsPrivateChatMuted(ctx, "bob", "alice", now)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestMuteGroupChat_Unmute(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.MuteGroupChat(ctx, "alice", "g1", testEpoch.Add(24*time.Hour)))
	muted, err := db.IsGroupChatMuted(ctx, "alice", "g1", testEpoch)
	require.NoError(t, err)
	assert.True(t, muted)

	require.NoError(t, db.UnmuteGroupChat(ctx, "alice", "g1"))
	require.NoError(t, db.UnmuteGroupChat(ctx, "alice", "g1"))

	muted, err = db.IsGroupChatMuted(ctx, "alice", "g1", testEpoch)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestListMutedChats_BothKinds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.MutePrivateChat(ctx, "alice", "bob", testEpoch.Add(time.Hour)))
	require.NoError(t, db.MuteGroupChat(ctx, "alice", "g1", testEpoch.Add(2*time.Hour)))
	require.NoError(t, db.MuteGroupChat(ctx, "carol", "g1", testEpoch.Add(2*time.Hour)))

	mutes, err := db.ListMutedChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mutes, 2)
	assert.Equal(t, models.KindGroup, mutes[0].Kind)
	assert.Equal(t, "g1", mutes[0].TargetID)
	assert.Equal(t, models.KindPrivate, mutes[1].Kind)
	assert.Equal(t, "bob", mutes[1].TargetID)
}

func TestDeleteExpiredMutes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.MutePrivateChat(ctx, "alice", "bob", testEpoch.Add(-time.Hour)))
	require.NoError(t, db.MutePrivateChat(ctx, "alice", "carol", testEpoch.Add(time.Hour)))
	require.NoError(t, db.MuteGroupChat(ctx, "alice", "g1", testEpoch.Add(-time.Second)))

	n, err := db.DeleteExpiredMutes(ctx, testEpoch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mutes, err := db.ListMutedChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	assert.Equal(t, "carol", mutes[0].TargetID)
}
