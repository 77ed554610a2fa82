package security

import (
	"fmt"
	"strings"
)

// weakSecrets are placeholder values that show up in copied sample configs
var weakSecrets = []string{
	"secret",
	"changeme",
	"change-me",
	"password",
	"jwt-secret",
	"development",
}

// ValidateSecretStrength requires a secret of at least minLen characters that
// is not a well known placeholder
func ValidateSecretStrength(name, secret string, minLen int) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}
	if len(secret) < minLen {
		return fmt.Errorf("%s must be at least %d characters long", name, minLen)
	}

	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Trim(lower, "-_0123456789") == weak {
			return fmt.Errorf("%s uses a placeholder value", name)
		}
	}
	return nil
}
