package watcher

import "errors"

// Completion outcomes and backend errors.
var (
	// ErrOverflow reports that more changes happened than fit in the buffer.
	ErrOverflow = errors.New("notification queue overflow")

	// ErrOperationAborted reports that an outstanding operation was cancelled.
	ErrOperationAborted = errors.New("operation aborted")

	// ErrNotDirectory is returned when the watch path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrDirectoryRemoved reports that the watched directory itself went away.
	ErrDirectoryRemoved = errors.New("watched directory was removed")

	// ErrAlreadyArmed is returned when a request is issued while one is outstanding.
	ErrAlreadyArmed = errors.New("operation already outstanding")

	// ErrHandleClosed is returned when using a closed directory handle.
	ErrHandleClosed = errors.New("directory handle is closed")

	// ErrPortClosed is returned when using a closed completion port.
	ErrPortClosed = errors.New("completion port is closed")

	// ErrUnknownFilter is returned by ParseFilter for unknown category names.
	ErrUnknownFilter = errors.New("unknown change filter")

	// ErrUnknownAction is returned when decoding an unknown action name.
	ErrUnknownAction = errors.New("unknown change action")
)
