package validation

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{"uuid", "0d3c2f9a-6f7e-4b8e-9c1d-2a3b4c5d6e7f", false},
		{"short", "u1", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", constants.MaxIDLength+1), true},
		{"newline", "abc\ndef", true},
		{"null byte", "abc\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("receiverId", tt.value)
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
			appErr, _ := errors.As(err)
			assert.Equal(t, "receiverId", appErr.Context["field"])
		})
	}
}

func TestValidateIDList(t *testing.T) {
	assert.NoError(t, ValidateIDList("ids", []string{"a", "b"}, 2))
	assert.Error(t, ValidateIDList("ids", nil, 2))
	assert.Error(t, ValidateIDList("ids", []string{"a", "b", "c"}, 2))
	assert.Error(t, ValidateIDList("ids", []string{"a", ""}, 2))
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError bool
	}{
		{"plain", "hello", false},
		{"emoji", "👋 hi", false},
		{"at limit", strings.Repeat("é", constants.MaxMessageContentLength), false},
		{"over limit", strings.Repeat("a", constants.MaxMessageContentLength+1), true},
		{"empty", "", true},
		{"whitespace", " \n\t", true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.content)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeMessageType(t *testing.T) {
	got, err := NormalizeMessageType("")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, got)

	got, err = NormalizeMessageType(models.MessageTypeAudio)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeAudio, got)

	_, err = NormalizeMessageType("Sticker")
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
}

func TestValidateReaction(t *testing.T) {
	assert.NoError(t, ValidateReaction("👍"))
	assert.Error(t, ValidateReaction(""))
	assert.Error(t, ValidateReaction(strings.Repeat("x", constants.MaxReactionLength+1)))
}

func TestNormalizeSearchQuery(t *testing.T) {
	q, err := NormalizeSearchQuery("  Report ")
	require.NoError(t, err)
	assert.Equal(t, "Report", q)

	_, err = NormalizeSearchQuery("   ")
	assert.Error(t, err)

	_, err = NormalizeSearchQuery(strings.Repeat("q", constants.MaxSearchQueryLength+1))
	assert.Error(t, err)
}

func TestValidateMuteUntil(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateMuteUntil(now.Add(time.Hour), now))
	assert.Error(t, ValidateMuteUntil(now, now))
	assert.Error(t, ValidateMuteUntil(now.Add(-time.Minute), now))
	assert.Error(t, ValidateMuteUntil(time.Time{}, now))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/messages", strings.NewReader("hello"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 10))
	assert.Error(t, ValidateHTTPRequestSize(req, 2))

	req.ContentLength = -1
	assert.NoError(t, ValidateHTTPRequestSize(req, 10), "unknown length is bounded by the reader")
}

func TestValidateTimeoutAndRange(t *testing.T) {
	assert.NoError(t, ValidateTimeout(30, "timeout"))
	assert.Error(t, ValidateTimeout(0, "timeout"))
	assert.Error(t, ValidateTimeout(3601, "timeout"))
	assert.Error(t, ValidateNumericRange(5, "port", 10, 20))
}

func TestValidateConnectionPool(t *testing.T) {
	tests := []struct {
		name        string
		maxOpen     int
		maxIdle     int
		expectError bool
	}{
		{"valid", 20, 10, false},
		{"sqlite single", 1, 1, false},
		{"zero open", 0, 0, true},
		{"too many", 1001, 10, true},
		{"negative idle", 10, -1, true},
		{"idle above open", 5, 6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConnectionPool(tt.maxOpen, tt.maxIdle)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
