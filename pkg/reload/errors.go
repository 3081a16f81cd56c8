package reload

import "errors"

var (
	// ErrNoPath is returned when no configuration file is given.
	ErrNoPath = errors.New("no configuration file to watch")

	// ErrWatchFailed is returned when the file's directory cannot be watched.
	ErrWatchFailed = errors.New("failed to watch configuration directory")
)
