// Package ids provides ULID primitives used for request and event identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu sync.Mutex
	// entropy is monotonic so ids minted within one millisecond still sort in
	// the order they were created.
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a new ULID string (26 chars) stamped with now.
// A zero now means the current time.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	mu.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
