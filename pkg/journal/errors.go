package journal

import "errors"

// Common errors returned by the journal.
var (
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("journal is closed")

	// ErrNilEntry is returned when appending a nil entry.
	ErrNilEntry = errors.New("nil journal entry")

	// ErrEmptyPath is returned when no database path is configured.
	ErrEmptyPath = errors.New("journal database path is empty")

	// ErrLocked is returned when another process holds the journal open.
	ErrLocked = errors.New("journal is in use by another process")
)
