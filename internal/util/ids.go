// Package util provides small helpers shared across SalesPipe components.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// SessionIDLength is the length of the short session ids shown to operators.
const SessionIDLength = 8

// NewSessionID returns a short uppercase session id taken from a random UUID.
func NewSessionID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:SessionIDLength])
}

// NewID returns a prefixed random id, e.g. "msg_3f2a...".
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewMessageID returns an id for a transcript message.
func NewMessageID() string {
	return NewID("msg_")
}

// NewThoughtLogID returns an id for a thought log row.
func NewThoughtLogID() string {
	return NewID("tl_")
}

// NewJobID returns an id for a background job.
func NewJobID() string {
	return NewID("job_")
}
