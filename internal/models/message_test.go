package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageType_Valid(t *testing.T) {
	assert.True(t, MessageTypeText.Valid())
	assert.True(t, MessageTypeVideo.Valid())
	assert.True(t, MessageTypeAudio.Valid())
	assert.False(t, MessageType("text").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestParseMessageKind(t *testing.T) {
	tests := []struct {
		in      string
		want    MessageKind
		wantErr bool
	}{
		{"PrivateMessage", KindPrivate, false},
		{"private", KindPrivate, false},
		{" GROUP ", KindGroup, false},
		{"groupmessage", KindGroup, false},
		{"channel", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMessageKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrivateMessage_Visibility(t *testing.T) {
	tests := []struct {
		name        string
		msg         PrivateMessage
		wantKind    VisibilityKind
		visibleTo   []string
		invisibleTo []string
	}{
		{
			name:      "untouched",
			msg:       PrivateMessage{SenderID: "a", ReceiverID: "b"},
			wantKind:  Visible,
			visibleTo: []string{"a", "b"},
		},
		{
			name:        "hidden by sender",
			msg:         PrivateMessage{SenderID: "a", ReceiverID: "b", DeletedBySender: true},
			wantKind:    HiddenFor,
			visibleTo:   []string{"b"},
			invisibleTo: []string{"a"},
		},
		{
			name:        "hidden by both",
			msg:         PrivateMessage{SenderID: "a", ReceiverID: "b", DeletedBySender: true, DeletedByReceiver: true},
			wantKind:    HiddenFor,
			invisibleTo: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.msg.Visibility()
			assert.Equal(t, tt.wantKind, v.Kind)
			for _, id := range tt.visibleTo {
				assert.True(t, v.VisibleTo(id), id)
			}
			for _, id := range tt.invisibleTo {
				assert.False(t, v.VisibleTo(id), id)
			}
		})
	}
}

func TestGroupMessage_Visibility(t *testing.T) {
	live := GroupMessage{SenderID: "a", GroupID: "g"}
	assert.Equal(t, Visible, live.Visibility().Kind)
	assert.True(t, live.Visibility().VisibleTo("anyone"))

	archived := GroupMessage{SenderID: "a", GroupID: "g", IsArchived: true}
	assert.Equal(t, ArchivedForAll, archived.Visibility().Kind)
	assert.False(t, archived.Visibility().VisibleTo("a"))
}

func TestVisibilityKind_String(t *testing.T) {
	assert.Equal(t, "visible", Visible.String())
	assert.Equal(t, "archived", ArchivedForAll.String())
	assert.Equal(t, "hidden", HiddenFor.String())
	assert.Equal(t, "unknown", VisibilityKind(42).String())
}

func TestPrivateMessage_Parties(t *testing.T) {
	sender := &Profile{ID: "a", FirstName: "Ada"}
	receiver := &Profile{ID: "b", FirstName: "Bob"}
	msg := &PrivateMessage{SenderID: "a", ReceiverID: "b", Sender: sender, Receiver: receiver}

	assert.True(t, msg.IsParty("a"))
	assert.True(t, msg.IsParty("b"))
	assert.False(t, msg.IsParty("c"))

	assert.Equal(t, "b", msg.Counterpart("a"))
	assert.Equal(t, "a", msg.Counterpart("b"))
	assert.Same(t, receiver, msg.CounterpartProfile("a"))
	assert.Same(t, sender, msg.CounterpartProfile("b"))
}

func TestParseSearchScope(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchScope
		wantErr bool
	}{
		{"", SearchAll, false},
		{"all", SearchAll, false},
		{"Private", SearchPrivate, false},
		{"group", SearchGroup, false},
		{"channels", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSearchScope(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSavedMessage_Kind(t *testing.T) {
	id := "m-1"
	assert.Equal(t, KindPrivate, (&SavedMessage{PrivateMessageID: &id}).Kind())
	assert.Equal(t, KindGroup, (&SavedMessage{GroupMessageID: &id}).Kind())
}

func TestMutedChat_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &MutedChat{MutedUntil: now.Add(time.Hour)}
	assert.True(t, m.ActiveAt(now))
	assert.False(t, m.ActiveAt(now.Add(time.Hour)))
	assert.False(t, m.ActiveAt(now.Add(2*time.Hour)))
}

func TestMessageJSON_IncludesVisibility(t *testing.T) {
	hidden := PrivateMessage{ID: "m1", SenderID: "a", ReceiverID: "b", DeletedByReceiver: true}
	raw, err := json.Marshal(&hidden)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "m1", decoded["id"])
	assert.Equal(t, map[string]interface{}{
		"kind":       "hidden",
		"hiddenFrom": []interface{}{"b"},
	}, decoded["visibility"])

	raw, err = json.Marshal(GroupMessage{ID: "g1", IsArchived: true})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"visibility":{"kind":"archived"}`)
}

func TestSearchResultJSON(t *testing.T) {
	tests := []struct {
		name   string
		result SearchResult
		want   string
	}{
		{
			name:   "all with no matches",
			result: SearchResult{Private: []*PrivateMessage{}, Group: []*GroupMessage{}},
			want:   `{"group":[],"private":[]}`,
		},
		{
			name:   "private scope",
			result: SearchResult{Private: []*PrivateMessage{}},
			want:   `{"private":[]}`,
		},
		{
			name:   "group scope",
			result: SearchResult{Group: []*GroupMessage{}},
			want:   `{"group":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(&tt.result)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}
