// Package uid issues the identifiers the API hands out: import ids and
// request ids.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// maxRequestIDLength bounds client-supplied request ids.
const maxRequestIDLength = 128

// NewImportID returns a time-ordered UUIDv7 so imports sort by creation in
// index order. Falls back to a random v4 if the clock source fails.
func NewImportID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ParseImportID returns the canonical lowercase form of s. Only the 36-char
// hyphenated layout is accepted; uuid.Parse alone would also take urn and
// braced forms that never appear in our URLs.
func ParseImportID(s string) (string, bool) {
	if len(s) != 36 {
		return "", false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// RequestID keeps a client-supplied id when it is short printable ASCII and
// mints a fresh compact one otherwise.
func RequestID(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate != "" && len(candidate) <= maxRequestIDLength && printable(candidate) {
		return candidate
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
