package realtime

import (
	"time"

	"excuses/cmd/internal/ids"
)

// NewSessionID returns a ULID used as the feed session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id, so ids sort by emit time.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
