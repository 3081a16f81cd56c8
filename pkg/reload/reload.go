// Package reload keeps a configuration file under watch and reloads it
// whenever it changes on disk.
//
// The file's directory is watched non-recursively for name and last-write
// changes. Bursts of changes (editors often write, rename and touch a file in
// quick succession) are debounced into a single reload. An overflow forces a
// reload because the change to the file may have been among the lost ones.
//
// Example usage:
//
//	r, err := reload.New(port, reload.Config{
//	    Path: "~/.config/folderwatch/config.yaml",
//	    OnChange: func(cfg *config.Config) {
//	        log.SetLevel(cfg.Logging.Level)
//	    },
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
package reload

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xmhha/folderwatch/pkg/config"
	"github.com/0xmhha/folderwatch/pkg/logger"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// Config contains reloader configuration.
type Config struct {
	// Path is the configuration file.
	Path string

	// OnChange receives every successfully reloaded configuration. It runs
	// on a timer goroutine, never concurrently with itself.
	OnChange func(cfg *config.Config)

	// Load reads and validates the file.
	// Default: config.LoadFromFile.
	Load func(path string) (*config.Config, error)

	// DebounceInterval is the quiet period before a reload.
	// Default: 100ms.
	DebounceInterval time.Duration

	// Logger receives reload diagnostics.
	// Default: logger.Noop().
	Logger logger.Logger
}

// Reloader reloads one configuration file.
type Reloader struct {
	path    string
	name    string
	config  Config
	logger  logger.Logger
	watcher *watcher.Watcher

	// reloadMu serialises reloads and OnChange calls.
	reloadMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	current *config.Config
	reloads int
	failed  int
	closed  bool
}

// New starts watching cfg.Path. Completions are delivered through port, so
// the caller must keep pumping it.
func New(port *watcher.Port, cfg Config) (*Reloader, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if cfg.Load == nil {
		cfg.Load = config.LoadFromFile
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	r := &Reloader{
		path:   path,
		name:   filepath.Base(path),
		config: cfg,
		logger: cfg.Logger.With("component", "reload", "config", path),
	}

	r.watcher = watcher.New(port, watcher.Config{
		Path:     filepath.Dir(path),
		Filter:   watcher.FilterFileName | watcher.FilterLastWrite,
		Callback: r.onChange,
		Logger:   r.logger,
	})
	if r.watcher.State() != watcher.StateActive {
		return nil, fmt.Errorf("%w: %s", ErrWatchFailed, filepath.Dir(path))
	}

	r.logger.Info("watching configuration file",
		"debounce_interval", cfg.DebounceInterval)
	return r, nil
}

// Path returns the watched configuration file.
func (r *Reloader) Path() string {
	return r.path
}

// Current returns the last successfully loaded configuration, or nil before
// the first reload.
func (r *Reloader) Current() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Reloads returns the number of successful and failed reloads.
func (r *Reloader) Reloads() (ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads, r.failed
}

// Reload loads the file now. A failed reload keeps the previous
// configuration.
func (r *Reloader) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	cfg, err := r.config.Load(r.path)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		r.failed++
		r.mu.Unlock()
		r.logger.Warn("failed to reload configuration, keeping previous", "error", err)
		return fmt.Errorf("failed to reload %s: %w", r.path, err)
	}
	r.current = cfg
	r.reloads++
	r.mu.Unlock()

	r.logger.Info("configuration reloaded")
	if r.config.OnChange != nil {
		r.config.OnChange(cfg)
	}
	return nil
}

// Close stops watching. A pending reload is dropped.
func (r *Reloader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	return r.watcher.Close()
}

// onChange is the watcher callback.
func (r *Reloader) onChange(_ any, action watcher.Action, name string) {
	switch action {
	case watcher.ActionOverflow:
		r.logger.Debug("change notifications lost, forcing reload")
	case watcher.ActionAdded, watcher.ActionModified, watcher.ActionRenamedNewName:
		if name != r.name {
			return
		}
	default:
		// Removal or the old half of a rename: keep the current settings.
		return
	}

	r.schedule()
}

// schedule debounces reloads.
func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(r.config.DebounceInterval, func() {
		r.fire(timer)
	})
	r.timer = timer
}

// fire runs a debounced reload unless timer has been superseded or stopped.
func (r *Reloader) fire(timer *time.Timer) {
	r.mu.Lock()
	if r.timer != timer {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	_ = r.Reload() // nolint:errcheck
}
