package auth

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SessionHeader carries the anonymous visitor's session identifier.
const SessionHeader = "X-Session-Id"

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{32,128}$`)

// ValidSessionID reports whether id is an acceptable anonymous session identifier.
func ValidSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// NewSessionID generates a random 32 character session identifier.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
