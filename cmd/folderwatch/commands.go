package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/config"
	"github.com/0xmhha/folderwatch/pkg/display"
	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/logger"
	"github.com/0xmhha/folderwatch/pkg/monitor"
)

// remoteTimeout bounds a request to the HTTP API of a running watch.
const remoteTimeout = 10 * time.Second

// watchCommand watches a directory until interrupted.
type watchCommand struct {
	path         string
	recursive    bool
	recursiveSet bool
	filter       []string
	format       string
	color        string
	listen       string
	noJournal    bool
	reload       bool
	refresh      time.Duration
	configPath   string
	out          io.Writer
}

// Execute runs the watch command.
func (c *watchCommand) Execute() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)

	filter, err := cfg.WatchFilter()
	if err != nil {
		return err
	}

	var store journal.Store
	if !c.noJournal {
		store, err = openJournal(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Error("failed to close journal", "error", closeErr)
			}
		}()
	}

	formatter := display.New(display.Config{
		Format:         display.Format(cfg.Display.Format),
		Color:          display.ResolveColor(display.ColorMode(cfg.Display.Color), c.out),
		ShowTimestamps: true,
	})

	var reloadPath string
	if c.reload {
		reloadPath = config.FindConfigFile(c.configPath)
		if reloadPath == "" {
			log.Warn("no configuration file found, live reload disabled")
		}
	}

	refresh := c.refresh
	if refresh <= 0 {
		refresh = time.Second
	}

	m, err := monitor.New(monitor.Config{
		Path:       cfg.Watch.Path,
		Recursive:  cfg.Watch.Recursive,
		Filter:     filter,
		ConfigPath: reloadPath,
		OnReload: func(newCfg *config.Config) {
			log.Info("configuration applied",
				"log_level", newCfg.Logging.Level)
		},
		Listen:          cfg.Server.Listen,
		WriteTimeout:    cfg.Server.WriteTimeout,
		RefreshInterval: refresh,
	}, store, formatter, c.out, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.refresh > 0 {
		go logUpdates(m.Updates(), log)
	}

	runErr := m.Run(ctx)

	stats := m.Stats()
	log.Info("watch finished",
		"changes", stats.Count,
		"overflows", stats.Overflows,
		"names", stats.DistinctNames)

	return runErr
}

// loadConfig loads the configuration and applies the command line flags.
func (c *watchCommand) loadConfig() (*config.Config, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, err
	}

	if c.path != "" {
		cfg.Watch.Path = c.path
	}
	if c.recursiveSet {
		cfg.Watch.Recursive = c.recursive
	}
	if len(c.filter) > 0 {
		cfg.Watch.Filter = c.filter
	}
	if c.format != "" {
		cfg.Display.Format = c.format
	}
	if c.color != "" {
		cfg.Display.Color = c.color
	}
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logUpdates logs one statistics line per update until the monitor stops.
func logUpdates(updates <-chan monitor.Update, log logger.Logger) {
	for u := range updates {
		if u.Delta.Changes == 0 {
			continue
		}
		log.Info("change statistics",
			"new", u.Delta.Changes,
			"total", u.Stats.Count,
			"overflows", u.Stats.Overflows,
			"interval_p50", u.Stats.IntervalP50)
	}
}

// historyCommand displays recorded changes.
type historyCommand struct {
	limit      int
	since      uint64
	format     string
	remote     string
	clear      bool
	configPath string
	out        io.Writer
}

// Execute runs the history command.
func (c *historyCommand) Execute() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.format != "" {
		cfg.Display.Format = c.format
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log := newLogger(cfg)

	var entries []journal.Entry
	if c.remote != "" {
		if c.clear {
			return errors.New("-clear cannot be combined with -remote")
		}
		entries, err = fetchRemoteChanges(c.remote, c.limit, c.since)
		if err != nil {
			return err
		}
	} else {
		entries, err = c.readJournal(cfg, log)
		if err != nil || c.clear {
			return err
		}
	}

	if len(entries) == 0 && cfg.Display.Format != string(display.FormatJSON) {
		fmt.Fprintln(c.out, "No changes recorded")
		return nil
	}

	formatter := display.New(display.Config{
		Format:         display.Format(cfg.Display.Format),
		Color:          display.ResolveColor(display.ColorMode(cfg.Display.Color), c.out),
		ShowTimestamps: true,
	})
	return formatter.FormatEntries(c.out, entries)
}

// readJournal reads (or clears) the local journal.
func (c *historyCommand) readJournal(cfg *config.Config, log logger.Logger) ([]journal.Entry, error) {
	store, err := openJournal(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("failed to close journal", "error", closeErr)
		}
	}()

	if c.clear {
		if err := store.Clear(); err != nil {
			return nil, fmt.Errorf("failed to clear journal: %w", err)
		}
		fmt.Fprintln(c.out, "Journal cleared.")
		return nil, nil
	}

	if c.since > 0 {
		return store.Since(c.since, c.limit)
	}
	return store.List(c.limit)
}

// fetchRemoteChanges queries /api/v1/changes of a running watch.
func fetchRemoteChanges(addr string, limit int, since uint64) ([]journal.Entry, error) {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	} else {
		q.Set("limit", "1000")
	}
	if since > 0 {
		q.Set("since", strconv.FormatUint(since, 10))
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(base, "/")+"/api/v1/changes?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid remote address: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("remote returned %s: %s", resp.Status, apiErr.Error)
	}

	var entries []journal.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode remote changes: %w", err)
	}
	return entries, nil
}

// summaryCommand displays change statistics.
type summaryCommand struct {
	top        int
	groupBy    []string
	format     string
	compact    bool
	configPath string
	out        io.Writer
}

// Execute runs the summary command.
func (c *summaryCommand) Execute() error {
	dimensions, err := c.parseDimensions()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.format != "" {
		cfg.Display.Format = c.format
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log := newLogger(cfg)

	store, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("failed to close journal", "error", closeErr)
		}
	}()

	entries, err := store.List(0)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	agg := aggregator.Summarize(aggregator.Config{
		GroupBy:        dimensions,
		TrackIntervals: true,
	}, entries)

	return c.displayResults(cfg, agg)
}

// parseDimensions converts dimension strings to types.
func (c *summaryCommand) parseDimensions() ([]aggregator.Dimension, error) {
	var dimensions []aggregator.Dimension
	for _, dim := range c.groupBy {
		switch dim {
		case "action":
			dimensions = append(dimensions, aggregator.DimAction)
		case "directory", "dir":
			dimensions = append(dimensions, aggregator.DimDirectory)
		case "date":
			dimensions = append(dimensions, aggregator.DimDate)
		case "hour":
			dimensions = append(dimensions, aggregator.DimHour)
		default:
			return nil, fmt.Errorf("invalid dimension: %s", dim)
		}
	}
	return dimensions, nil
}

// displayResults formats and prints statistics.
func (c *summaryCommand) displayResults(cfg *config.Config, agg aggregator.Aggregator) error {
	stats := agg.Stats()
	if stats.Count == 0 && cfg.Display.Format != string(display.FormatJSON) {
		fmt.Fprintln(c.out, "No changes recorded")
		return nil
	}

	formatter := display.New(display.Config{
		Format:         display.Format(cfg.Display.Format),
		Color:          display.ResolveColor(display.ColorMode(cfg.Display.Color), c.out),
		ShowTimestamps: true,
		Compact:        c.compact,
	})

	if err := formatter.FormatStats(c.out, stats); err != nil {
		return err
	}

	if len(c.groupBy) > 0 {
		if err := formatter.FormatGroupedStats(c.out, agg.GroupedStats(), c.groupBy); err != nil {
			return err
		}
	}

	if c.top > 0 {
		return formatter.FormatTopNames(c.out, agg.TopNames(c.top))
	}
	return nil
}

// loadConfig loads configuration from configPath or the default locations.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger creates the logger described by cfg.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// openJournal opens the change journal described by cfg.
func openJournal(cfg *config.Config, log logger.Logger) (journal.Store, error) {
	store, err := journal.Open(journal.Config{
		DBPath:    cfg.Storage.DBPath,
		Retention: cfg.Storage.Retention,
	}, log)
	if errors.Is(err, journal.ErrLocked) {
		return nil, fmt.Errorf("%w (is a watch running? use -remote with its -listen address)", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return store, nil
}
