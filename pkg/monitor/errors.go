package monitor

import "errors"

var (
	// ErrMonitorClosed is returned when operations are attempted on a closed monitor.
	ErrMonitorClosed = errors.New("monitor is closed")

	// ErrMonitorRunning is returned when Run is called on a running monitor.
	ErrMonitorRunning = errors.New("monitor is already running")

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid monitor configuration")

	// ErrWatchFailed is returned when the directory cannot be watched.
	ErrWatchFailed = errors.New("failed to watch directory")

	// ErrWatcherStopped is returned by Run when the watcher stopped on its
	// own, for example because the watched directory was removed.
	ErrWatcherStopped = errors.New("directory watcher stopped")
)
