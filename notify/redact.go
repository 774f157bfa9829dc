package notify

import (
	"regexp"
	"strings"
)

var (
	reBearer  = regexp.MustCompile(`(?i)\bBearer\s+\S+`)
	reHFToken = regexp.MustCompile(`\bhf_[A-Za-z0-9]{8,}\b`)
)

// Redact replaces each known secret, any bearer credential and anything
// shaped like a Hugging Face access token with ***.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, "***")
	}
	text = reBearer.ReplaceAllString(text, "Bearer ***")
	return reHFToken.ReplaceAllString(text, "***")
}
