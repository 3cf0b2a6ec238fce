package security

import (
	"strings"
	"unicode/utf8"

	"github.com/joescharf/desk/internal/patterns"
)

// MinReplyLength is the shortest generated reply accepted after cleaning.
const MinReplyLength = 10

// SanitizeOutput strips prompt-leak phrases from generated text. ok is false
// when what remains is too short to send.
func SanitizeOutput(lib *patterns.Library, text string) (clean string, ok bool) {
	clean = text
	for _, rule := range lib.OutputLeaks {
		for _, p := range rule.Patterns {
			clean = p.ReplaceAllString(clean, "")
		}
	}
	clean = strings.TrimSpace(clean)
	return clean, utf8.RuneCountInString(clean) >= MinReplyLength
}
