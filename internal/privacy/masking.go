package privacy

import (
	"strings"

	"collabchat/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], constants.DefaultPhoneMaskLength)
	}
	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskUserID keeps the last 4 characters of a user identifier
// Example: "9b2f1c7e-user" -> "*********user"
func MaskUserID(userID string) string {
	return maskString(userID, 4)
}

// MaskGroupID masks a group identifier like a user identifier
func MaskGroupID(groupID string) string {
	return maskString(groupID, 4)
}

// MaskMessageID keeps the first 8 characters of a message UUID, enough to
// correlate log lines without exposing the full id
// Example: "0d3c2f9a-6f7e-4b8e-9c1d-2a3b4c5d6e7f" -> "0d3c2f9a..."
func MaskMessageID(messageID string) string {
	if len(messageID) <= constants.DefaultMessageIDLength {
		return messageID
	}
	return messageID[:constants.DefaultMessageIDLength] + "..."
}

// MaskDeviceToken never shows more than the last 6 characters of a push token
func MaskDeviceToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return "***" + token[len(token)-6:]
}

// MaskContent hides message bodies entirely
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

var fieldMaskers = map[string]func(string) string{
	"phone":       MaskPhoneNumber,
	"user_id":     MaskUserID,
	"userId":      MaskUserID,
	"sender_id":   MaskUserID,
	"receiver_id": MaskUserID,
	"viewer_id":   MaskUserID,
	"target_id":   MaskUserID,
	"group_id":    MaskGroupID,
	"groupId":     MaskGroupID,
	"message_id":  MaskMessageID,
	"messageId":   MaskMessageID,
	"token":       MaskDeviceToken,
	"device":      MaskDeviceToken,
	"content":     MaskContent,
}

// MaskSensitiveFields applies appropriate masking to common logging fields.
// Non-string values are passed through unchanged.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		mask, known := fieldMaskers[k]
		s, isString := v.(string)
		if known && isString {
			masked[k] = mask(s)
			continue
		}
		masked[k] = v
	}

	return masked
}
