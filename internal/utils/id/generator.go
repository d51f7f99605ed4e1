package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewCallID generates an identifier for one capability invocation.
func NewCallID() string {
	return newIdentifier("call")
}

// NewRequestID generates an identifier for one outbound request.
func NewRequestID() string {
	return newIdentifier("req")
}

func newIdentifier(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, NewUUIDv7())
}

// NewUUIDv7 returns a time-ordered UUID, falling back to a random v4 when the
// clock source fails.
func NewUUIDv7() string {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return uuidv7.String()
}
