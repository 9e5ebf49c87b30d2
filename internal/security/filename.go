// Package security holds filename hygiene for user-supplied upload names.
package security

import "strings"

// SanitizeFilename makes a safe filename stem from an arbitrary string. It
// replaces any characters that are not ASCII letters, digits, dot, underscore
// or dash with an underscore, collapses runs of underscores, and trims the
// result to a reasonable length. Upload names come straight from the client
// and end up in artifact paths and Content-Disposition headers, so they are
// never used verbatim.
func SanitizeFilename(s string) string {
	if s == "" {
		return "scan"
	}
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "scan"
	}
	return out
}
