// Package monitor runs a watch session: it owns the completion port, the
// directory watcher and everything that consumes its changes.
//
// Every change is appended to the journal, folded into live statistics,
// published to stream subscribers and written to the display sink, in
// that order and on the goroutine that pumps the port.
//
// Example usage:
//
//	m, err := monitor.New(monitor.Config{
//	    Path:      "/srv/inbox",
//	    Recursive: true,
//	}, store, display.New(display.Config{}), os.Stdout, log)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	err = m.Run(ctx) // blocks until ctx is done
package monitor

import (
	"context"
	"time"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/config"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// Config holds the configuration for a watch session.
type Config struct {
	// Path is the directory to watch.
	Path string

	// Recursive also watches subdirectories.
	Recursive bool

	// Filter selects the observed change categories.
	// Default: watcher.DefaultFilter.
	Filter watcher.Filter

	// ConfigPath enables live reload of the configuration file when set.
	ConfigPath string

	// OnReload receives every reloaded configuration after the monitor has
	// applied the log level.
	OnReload func(cfg *config.Config)

	// Listen is the HTTP API address. Empty disables the API.
	Listen string

	// WriteTimeout bounds every WebSocket write.
	// Default: 5s.
	WriteTimeout time.Duration

	// RefreshInterval is the interval between statistics updates.
	// Default: 1s.
	RefreshInterval time.Duration

	// Backend performs the directory reads.
	// Default: the platform backend.
	Backend watcher.Backend
}

// Monitor runs one watch session.
type Monitor interface {
	// Run pumps completions until ctx is done, Close is called or the
	// watched directory becomes unavailable, then releases every resource.
	Run(ctx context.Context) error

	// Stats returns statistics of the changes seen so far.
	Stats() aggregator.Statistics

	// Updates delivers periodic statistics updates while running.
	Updates() <-chan Update

	// Addr returns the HTTP API address, or "" when the API is disabled.
	Addr() string

	// Close stops the session. It is safe to call more than once.
	Close() error
}

// Update represents a periodic statistics update.
type Update struct {
	// Timestamp of the update
	Timestamp time.Time

	// Stats contains the current aggregated statistics
	Stats aggregator.Statistics

	// Delta contains the change since last update
	Delta DeltaStats
}

// DeltaStats represents changes since the last update.
type DeltaStats struct {
	// Changes is the number of new changes
	Changes int

	// Overflows is the number of new overflow markers
	Overflows int
}
