package validation

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/models"
)

// ValidateID checks an opaque identifier supplied by a client
func ValidateID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(field, value, "must not be empty")
	}

	if len(value) > constants.MaxIDLength {
		return errors.NewValidationError(field, value,
			fmt.Sprintf("too long (max %d characters)", constants.MaxIDLength))
	}

	// Control characters would end up in log lines and SQL parameters
	for _, char := range value {
		if char < 0x20 || char == 0x7f {
			return errors.NewValidationError(field, value, "contains invalid characters")
		}
	}

	return nil
}

// ValidateIDList checks a batch of identifiers, e.g. for bulk delete
func ValidateIDList(field string, ids []string, max int) error {
	if len(ids) == 0 {
		return errors.NewValidationError(field, "", "must contain at least one id")
	}
	if len(ids) > max {
		return errors.NewValidationError(field, fmt.Sprintf("%d ids", len(ids)),
			fmt.Sprintf("too many ids (max %d)", max))
	}
	for _, id := range ids {
		if err := ValidateID(field, id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContent checks a message body
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError("content", "", "must not be empty")
	}

	if !utf8.ValidString(content) {
		return errors.NewValidationError("content", "", "must be valid UTF-8")
	}

	if n := utf8.RuneCountInString(content); n > constants.MaxMessageContentLength {
		return errors.NewValidationError("content", fmt.Sprintf("%d characters", n),
			fmt.Sprintf("too long (max %d characters)", constants.MaxMessageContentLength))
	}

	return nil
}

// NormalizeMessageType defaults an empty type to Text and rejects unknown ones
func NormalizeMessageType(t models.MessageType) (models.MessageType, error) {
	if t == "" {
		return models.MessageTypeText, nil
	}
	if !t.Valid() {
		return "", errors.NewValidationError("type", string(t), "must be one of Text, Video, Audio")
	}
	return t, nil
}

// ValidateReaction checks reaction content, usually a single emoji
func ValidateReaction(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError("content", "", "must not be empty")
	}
	if utf8.RuneCountInString(content) > constants.MaxReactionLength {
		return errors.NewValidationError("content", content,
			fmt.Sprintf("too long (max %d characters)", constants.MaxReactionLength))
	}
	return nil
}

// NormalizeSearchQuery trims and bounds a search query
func NormalizeSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.NewValidationError("q", "", "must not be empty")
	}
	if utf8.RuneCountInString(query) > constants.MaxSearchQueryLength {
		return "", errors.NewValidationError("q", "",
			fmt.Sprintf("too long (max %d characters)", constants.MaxSearchQueryLength))
	}
	return query, nil
}

// ValidateMuteUntil requires the mute to end in the future
func ValidateMuteUntil(until, now time.Time) error {
	if until.IsZero() {
		return errors.NewValidationError("mutedUntil", "", "must be set")
	}
	if !until.After(now) {
		return errors.NewValidationError("mutedUntil", until.Format(time.RFC3339), "must be in the future")
	}
	return nil
}

// ValidateHTTPRequestSize rejects a declared body larger than maxSizeBytes.
// An unknown length (chunked) passes; the reader must still be bounded.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes)).
			WithContext("limit", maxSizeBytes).
			WithUserMessage("Request body is too large")
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	return ValidateNumericRange(timeoutSec, fieldName, 1, 3600)
}

// ValidateConnectionPool validates database connection pool settings
func ValidateConnectionPool(maxOpen, maxIdle int) error {
	if maxOpen < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "max open connections must be at least 1")
	}

	if maxOpen > 1000 {
		return errors.New(errors.ErrCodeInvalidInput, "max open connections too large (max 1000)")
	}

	if maxIdle < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max idle connections cannot be negative")
	}

	if maxIdle > maxOpen {
		return errors.New(errors.ErrCodeInvalidInput, "max idle connections cannot exceed max open connections")
	}

	return nil
}
