package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "collabchat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}

	tests := []struct {
		name     string
		body     string
		length   int64 // overrides the declared length when set
		wantCode apperrors.ErrorCode
		want     string
	}{
		{name: "valid", body: `{"content":"hi"}`, want: "hi"},
		{name: "chunked", body: `{"content":"hi"}`, length: -1, want: "hi"},
		{name: "empty", body: "", wantCode: apperrors.ErrCodeValidationFailed},
		{name: "unknown field", body: `{"content":"hi","extra":1}`, wantCode: apperrors.ErrCodeInvalidInput},
		{name: "declared too large", body: `{"content":"hi"}`, length: MaxBodyBytes + 1, wantCode: apperrors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(tt.body))
			if tt.length != 0 {
				req.ContentLength = tt.length
			}

			var got payload
			err := DecodeJSON(req, &got)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Content)
		})
	}
}

func TestDecodeJSON_TooLargeUserMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.ContentLength = MaxBodyBytes * 2

	err := DecodeJSON(req, &struct{}{})
	assert.Equal(t, "Request body is too large", apperrors.GetUserMessage(err))
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}
