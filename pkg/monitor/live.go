package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/config"
	"github.com/0xmhha/folderwatch/pkg/display"
	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/logger"
	"github.com/0xmhha/folderwatch/pkg/reload"
	"github.com/0xmhha/folderwatch/pkg/stream"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

const shutdownTimeout = 5 * time.Second

// liveMonitor implements the Monitor interface.
type liveMonitor struct {
	config    Config
	logger    logger.Logger
	root      string
	store     journal.Store
	formatter display.Formatter
	out       io.Writer

	port     *watcher.Port
	watcher  *watcher.Watcher
	reloader *reload.Reloader
	hub      *stream.Hub

	server   *http.Server
	listener net.Listener

	mu        sync.RWMutex
	running   bool
	closed    bool
	stopChan  chan struct{}
	closeOnce sync.Once

	// Aggregation state
	agg       aggregator.Aggregator
	lastStats aggregator.Statistics

	// Update channel for consumers
	updates chan Update
}

// New creates a watch session and starts watching immediately; changes are
// delivered once Run pumps the port.
//
// Parameters:
//   - cfg: Monitor configuration
//   - store: Change journal, or nil to keep no history
//   - f: Formatter for the display sink, or nil for no display
//   - out: Display sink
//   - log: Logger instance
//
// Returns:
//   - Configured Monitor
//   - Error if the directory cannot be watched or the API cannot listen
func New(cfg Config, store journal.Store, f display.Formatter, out io.Writer, log logger.Logger) (Monitor, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: no path to watch", ErrInvalidConfig)
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}
	if out == nil {
		out = io.Discard
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m := &liveMonitor{
		config:    cfg,
		logger:    log,
		root:      root,
		store:     store,
		formatter: f,
		out:       out,
		hub:       stream.NewHub(0),
		stopChan:  make(chan struct{}),
		updates:   make(chan Update, 10),
		agg: aggregator.New(aggregator.Config{
			TrackIntervals: true,
		}),
	}

	port, err := watcher.NewPort(watcher.PortConfig{Backend: cfg.Backend, Logger: log})
	if err != nil {
		return nil, err
	}
	m.port = port

	m.watcher = watcher.New(port, watcher.Config{
		Path:      root,
		Recursive: cfg.Recursive,
		Filter:    cfg.Filter,
		Callback:  m.onChange,
		Logger:    log,
	})
	if m.watcher.State() != watcher.StateActive {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s", ErrWatchFailed, root)
	}

	if cfg.ConfigPath != "" {
		r, err := reload.New(port, reload.Config{
			Path:     cfg.ConfigPath,
			OnChange: m.applyConfig,
			Logger:   log,
		})
		if err != nil {
			log.Warn("live configuration reload disabled", "error", err)
		} else {
			m.reloader = r
		}
	}

	if cfg.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			m.closeWatches()
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}
		m.listener = ln
		m.server = &http.Server{
			Handler: stream.NewRouter(stream.NewServer(stream.Config{
				Hub:          m.hub,
				Store:        store,
				Root:         root,
				WriteTimeout: cfg.WriteTimeout,
				Logger:       log,
			})),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	log.Info("monitor created",
		"path", root,
		"recursive", m.watcher.Recursive(),
		"filter", m.watcher.Filter(),
		"journal", store != nil,
		"reload", m.reloader != nil,
		"listen", m.Addr())

	return m, nil
}

// Run implements Monitor.Run.
func (m *liveMonitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	m.running = true
	m.mu.Unlock()

	if m.server != nil {
		go func() {
			if err := m.server.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("http server failed", "error", err)
			}
		}()
		m.logger.Info("http api listening", "addr", m.Addr())
	}

	go m.periodicUpdates()

	m.logger.Info("watching for changes", "path", m.root)

	var runErr error
	for {
		if _, err := m.port.RunOnce(ctx); err != nil {
			if !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, watcher.ErrPortClosed) {
				runErr = err
			}
			break
		}
		if m.watcher.State() != watcher.StateActive {
			m.logger.Error("stopped watching, the directory is no longer available", "path", m.root)
			runErr = fmt.Errorf("%w: %s", ErrWatcherStopped, m.root)
			break
		}
	}

	m.release()
	return runErr
}

// Stats implements Monitor.Stats.
func (m *liveMonitor) Stats() aggregator.Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.agg.Stats()
}

// Updates implements Monitor.Updates.
func (m *liveMonitor) Updates() <-chan Update {
	return m.updates
}

// Addr implements Monitor.Addr.
func (m *liveMonitor) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Close implements Monitor.Close.
func (m *liveMonitor) Close() error {
	m.release()
	return nil
}

// onChange handles one change on the goroutine pumping the port.
func (m *liveMonitor) onChange(_ any, action watcher.Action, name string) {
	entry := journal.Entry{
		Time:   time.Now(),
		Root:   m.root,
		Action: action,
		Name:   name,
	}

	if action == watcher.ActionOverflow {
		m.logger.Warn("change notifications lost, rescan required", "path", m.root)
	}

	if m.store != nil {
		if err := m.store.Append(&entry); err != nil {
			m.logger.Warn("failed to record change", "name", name, "error", err)
		}
	}

	m.mu.Lock()
	m.agg.Add(entry)
	m.mu.Unlock()

	m.hub.Publish(entry)

	if m.formatter != nil {
		if err := m.formatter.FormatEntry(m.out, entry); err != nil {
			m.logger.Warn("failed to display change", "error", err)
		}
	}
}

// applyConfig applies a reloaded configuration.
func (m *liveMonitor) applyConfig(cfg *config.Config) {
	m.logger.SetLevel(cfg.Logging.Level)

	if path, err := filepath.Abs(cfg.Watch.Path); err == nil && path != m.root {
		m.logger.Info("watch path changed, restart to apply",
			"current", m.root,
			"configured", path)
	}

	if m.config.OnReload != nil {
		m.config.OnReload(cfg)
	}
}

// periodicUpdates sends periodic statistics updates.
func (m *liveMonitor) periodicUpdates() {
	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return

		case <-ticker.C:
			m.sendUpdate()
		}
	}
}

// sendUpdate sends a statistics update to the updates channel.
func (m *liveMonitor) sendUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	currentStats := m.agg.Stats()
	update := Update{
		Timestamp: time.Now(),
		Stats:     currentStats,
		Delta: DeltaStats{
			Changes:   currentStats.Count - m.lastStats.Count,
			Overflows: currentStats.Overflows - m.lastStats.Overflows,
		},
	}

	// Send update (non-blocking)
	select {
	case m.updates <- update:
	default:
		m.logger.Debug("updates channel full, dropping update")
	}

	m.lastStats = currentStats
}

// closeWatches stops the reloader and the target watcher, then the port.
func (m *liveMonitor) closeWatches() {
	if m.reloader != nil {
		if err := m.reloader.Close(); err != nil {
			m.logger.Warn("failed to stop configuration reload", "error", err)
		}
	}
	if err := m.watcher.Close(); err != nil {
		m.logger.Warn("failed to close watcher", "error", err)
	}
	if err := m.port.Close(); err != nil {
		m.logger.Warn("failed to close completion port", "error", err)
	}
}

// release stops the session and frees every resource exactly once.
func (m *liveMonitor) release() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.running = false
		close(m.stopChan)
		close(m.updates)
		m.mu.Unlock()

		m.closeWatches()
		m.hub.Close()

		if m.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := m.server.Shutdown(ctx); err != nil {
				m.logger.Warn("failed to shut down http server", "error", err)
			}
			cancel()
			_ = m.listener.Close()
		}

		m.logger.Info("monitor closed", "path", m.root)
	})
}
