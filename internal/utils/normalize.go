package utils

import "strings"

// NormalizePayload turns a decoded payload into a lookup key: surrounding
// whitespace trimmed, inner runs collapsed to a single space, upper-cased.
func NormalizePayload(payload string) string {
	return strings.ToUpper(strings.Join(strings.Fields(payload), " "))
}
