package excuse

import "errors"

var (
	// ErrEmptyText is returned when an excuse trims to the empty string.
	ErrEmptyText = errors.New("excuse text is empty")

	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("excuse not found")

	// ErrEmpty is returned by Random when the store holds no records.
	ErrEmpty = errors.New("no excuses available")

	// ErrPersist wraps failures writing the data file.
	ErrPersist = errors.New("persist excuses")
)
