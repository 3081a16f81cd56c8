// Package config provides configuration management for folderwatch.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Watching: %s\n", cfg.Watch.Path)
package config

import (
	"fmt"
	"time"

	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Watch.Path must not be empty
// - Watch.Filter must only name known change categories
// - Storage.Retention must be >= 0 (0 keeps everything)
// - Server.WriteTimeout must be > 0.
type Config struct {
	// Directory watch settings
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Change journal settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// HTTP/WebSocket surface settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Display settings
	Display DisplayConfig `yaml:"display" json:"display"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// WatchConfig selects what is watched.
type WatchConfig struct {
	// Directory to watch
	Path string `yaml:"path" json:"path"`

	// Also watch subdirectories
	Recursive bool `yaml:"recursive" json:"recursive"`

	// Change categories (file_name, dir_name, attributes, size, last_write,
	// last_access, creation, security, name, all)
	Filter []string `yaml:"filter" json:"filter"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB journal file
	DBPath string `yaml:"db_path" json:"db_path"`

	// Maximum number of journal entries kept, 0 keeps everything
	Retention int `yaml:"retention" json:"retention"`
}

// ServerConfig contains HTTP surface settings.
type ServerConfig struct {
	// Listen address, empty disables the server
	Listen string `yaml:"listen" json:"listen"`

	// Deadline for a single WebSocket write
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Output format (text, simple, json)
	Format string `yaml:"format" json:"format"`

	// Colour mode (auto, always, never)
	Color string `yaml:"color" json:"color"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`
}

// WatchFilter converts Watch.Filter into a watcher.Filter. An empty list
// yields watcher.DefaultFilter.
func (c *Config) WatchFilter() (watcher.Filter, error) {
	f, err := watcher.ParseFilter(c.Watch.Filter)
	if err != nil {
		return 0, err
	}
	if f == 0 {
		return watcher.DefaultFilter, nil
	}
	return f, nil
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - No watch path specified
//   - Unknown filter category
//   - Negative retention
//   - Invalid write timeout (must be > 0)
//   - Invalid display format or colour mode
//   - Invalid log level or format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Watch.Path == "" {
		return ErrNoWatchPath
	}
	if _, err := c.WatchFilter(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	if c.Storage.Retention < 0 {
		return ErrInvalidRetention
	}

	if c.Server.WriteTimeout <= 0 {
		return ErrInvalidWriteTimeout
	}

	validFormats := map[string]bool{
		"text":   true,
		"simple": true,
		"json":   true,
	}
	if !validFormats[c.Display.Format] {
		return ErrInvalidDisplayFormat
	}

	validColors := map[string]bool{
		"auto":   true,
		"always": true,
		"never":  true,
	}
	if !validColors[c.Display.Color] {
		return ErrInvalidColorMode
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Path:   ".",
			Filter: []string{"file_name", "dir_name", "size", "last_write"},
		},
		Storage: StorageConfig{
			DBPath:    defaultDBPath(),
			Retention: 10000,
		},
		Server: ServerConfig{
			WriteTimeout: 5 * time.Second,
		},
		Display: DisplayConfig{
			Format: "text",
			Color:  "auto",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
