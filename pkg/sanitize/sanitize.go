package sanitize

import (
	"strings"
	"unicode"
)

// CleanDisplayName trims the name, strips control characters and collapses
// runs of whitespace into single spaces
func CleanDisplayName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastSpace := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// CleanMessage trims the content and strips control characters except
// newlines and tabs, which are legitimate in message bodies
func CleanMessage(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	for _, r := range content {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
