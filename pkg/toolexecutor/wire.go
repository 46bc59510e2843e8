package toolexecutor

import "strings"

// SanitizeWireName maps a tool name to its HTTP path segment by replacing
// every character outside [A-Za-z0-9_-] with '_'. It is idempotent.
func SanitizeWireName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
