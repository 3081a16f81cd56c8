package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoWatchPath is returned when no directory to watch is specified.
	ErrNoWatchPath = errors.New("no watch path specified")

	// ErrInvalidFilter is returned when the filter names an unknown category.
	ErrInvalidFilter = errors.New("invalid watch filter")

	// ErrInvalidRetention is returned when journal retention is < 0.
	ErrInvalidRetention = errors.New("invalid retention: must be >= 0")

	// ErrInvalidWriteTimeout is returned when the server write timeout is <= 0.
	ErrInvalidWriteTimeout = errors.New("invalid write timeout: must be > 0")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be text, simple, or json")

	// ErrInvalidColorMode is returned when colour mode is not recognized.
	ErrInvalidColorMode = errors.New("invalid color mode: must be auto, always, or never")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
