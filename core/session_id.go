package core

import (
	"github.com/google/uuid"
)

// NewSessionID returns a random (v4) UUID string used as the session id of a
// capture agent when local storage has none.
func NewSessionID() string {
	return uuid.NewString()
}

// ShortID returns the first eight characters of a new UUID. Used for
// correlation ids in log lines.
func ShortID() string {
	return uuid.NewString()[:8]
}

// IsValidSessionID reports whether s parses as a UUID.
func IsValidSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
