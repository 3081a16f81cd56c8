package watcher

import "os"

// Backend is the operating system facility that performs asynchronous
// directory reads. Each Port owns one Backend.
type Backend interface {
	// Open opens dir for change monitoring with shared read, write and
	// delete access.
	Open(dir string, recursive bool) (Handle, error)

	// Alloc returns a zeroed buffer of exactly size bytes that is suitable
	// for asynchronous reads.
	Alloc(size int) ([]byte, error)

	// Free releases a buffer returned by Alloc.
	Free(buf []byte) error

	// Close releases backend resources. All handles must be closed first.
	Close() error
}

// Handle is an open directory.
type Handle interface {
	// Arm issues one asynchronous read of changes into op.Buffer and returns
	// without waiting. The outcome is reported exactly once through
	// op.Complete. A non-nil error means nothing was issued and op will not
	// complete.
	Arm(op *Operation) error

	// Cancel requests cancellation of the outstanding operation, which then
	// completes with ErrOperationAborted. Cancel does not wait.
	Cancel() error

	// Close closes the directory. No operation may be outstanding.
	Close() error
}

// DefaultBufferSize returns the notification buffer size: the larger of the
// memory page size and the allocation granularity.
func DefaultBufferSize() int {
	size := os.Getpagesize()
	if g := allocationGranularity(); g > size {
		size = g
	}
	return size
}
