package aggregator

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// aggregator implements the Aggregator interface.
type aggregator struct {
	config Config

	mu     sync.RWMutex
	stats  *group            // Overall statistics
	groups map[string]*group // Grouped statistics
	names  map[string]*NameStats
}

// group holds statistics for a specific dimension combination.
type group struct {
	intervals []int64 // Spacing between entries in nanoseconds
	names     map[string]struct{}
	last      time.Time
	stats     Statistics
}

func newGroup() *group {
	return &group{
		intervals: make([]int64, 0),
		names:     make(map[string]struct{}),
		stats:     Statistics{ByAction: make(map[string]int)},
	}
}

// New creates a new aggregator.
//
// Parameters:
//   - cfg: Aggregator configuration
//
// Returns a configured Aggregator.
func New(cfg Config) Aggregator {
	return &aggregator{
		config: cfg,
		stats:  newGroup(),
		groups: make(map[string]*group),
		names:  make(map[string]*NameStats),
	}
}

// Summarize aggregates entries in one call.
func Summarize(cfg Config, entries []journal.Entry) Aggregator {
	agg := New(cfg)
	for _, e := range entries {
		agg.Add(e)
	}
	return agg
}

// Add implements Aggregator.Add.
func (a *aggregator) Add(entry journal.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.update(a.stats, entry)

	if entry.Action != watcher.ActionOverflow && entry.Name != "" {
		ns, exists := a.names[entry.Name]
		if !exists {
			ns = &NameStats{Name: entry.Name}
			a.names[entry.Name] = ns
		}
		ns.Count++
		if !entry.Time.Before(ns.LastSeen) {
			ns.LastSeen = entry.Time
			ns.LastAction = entry.Action.String()
		}
	}

	if len(a.config.GroupBy) > 0 {
		key := a.dimensionKey(entry)
		g, exists := a.groups[key]
		if !exists {
			g = newGroup()
			a.groups[key] = g
		}
		a.update(g, entry)
	}
}

// Stats implements Aggregator.Stats.
func (a *aggregator) Stats() Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.snapshot(a.stats)
}

// GroupedStats implements Aggregator.GroupedStats.
func (a *aggregator) GroupedStats() map[string]Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make(map[string]Statistics, len(a.groups))
	for key, g := range a.groups {
		result[key] = a.snapshot(g)
	}
	return result
}

// TopNames implements Aggregator.TopNames.
func (a *aggregator) TopNames(n int) []NameStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]NameStats, 0, len(a.names))
	for _, ns := range a.names {
		result = append(result, *ns)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})

	if n > 0 && n < len(result) {
		result = result[:n]
	}
	return result
}

// Reset implements Aggregator.Reset.
func (a *aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats = newGroup()
	a.groups = make(map[string]*group)
	a.names = make(map[string]*NameStats)
}

// update folds entry into g.
func (a *aggregator) update(g *group, entry journal.Entry) {
	stats := &g.stats

	stats.Count++
	stats.ByAction[entry.Action.String()]++
	if entry.Action == watcher.ActionOverflow {
		stats.Overflows++
	} else if entry.Name != "" {
		g.names[entry.Name] = struct{}{}
		stats.DistinctNames = len(g.names)
	}

	// Entries arrive in journal order, so the spacing is never negative
	// unless the clock stepped backwards.
	if a.config.TrackIntervals && !g.last.IsZero() {
		if gap := entry.Time.Sub(g.last); gap >= 0 {
			g.intervals = append(g.intervals, int64(gap))
		}
	}
	g.last = entry.Time

	if stats.FirstSeen.IsZero() || entry.Time.Before(stats.FirstSeen) {
		stats.FirstSeen = entry.Time
	}
	if stats.LastSeen.IsZero() || entry.Time.After(stats.LastSeen) {
		stats.LastSeen = entry.Time
	}
}

// snapshot copies g's statistics and fills in the percentiles.
func (a *aggregator) snapshot(g *group) Statistics {
	stats := g.stats

	stats.ByAction = make(map[string]int, len(g.stats.ByAction))
	for k, v := range g.stats.ByAction {
		stats.ByAction[k] = v
	}

	if a.config.TrackIntervals && len(g.intervals) > 0 {
		sorted := make([]int64, len(g.intervals))
		copy(sorted, g.intervals)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats.IntervalP50 = time.Duration(percentile(sorted, 50))
		stats.IntervalP95 = time.Duration(percentile(sorted, 95))
		stats.IntervalP99 = time.Duration(percentile(sorted, 99))
	}

	return stats
}

// dimensionKey creates a unique key for the configured dimensions.
func (a *aggregator) dimensionKey(entry journal.Entry) string {
	if len(a.config.GroupBy) == 0 {
		return ""
	}

	parts := make([]string, 0, len(a.config.GroupBy))
	for _, dim := range a.config.GroupBy {
		switch dim {
		case DimAction:
			parts = append(parts, entry.Action.String())
		case DimDirectory:
			parts = append(parts, topDirectory(entry.Name))
		case DimDate:
			parts = append(parts, entry.Time.Format("2006-01-02"))
		case DimHour:
			parts = append(parts, entry.Time.Format("2006-01-02 15:00"))
		default:
			parts = append(parts, "")
		}
	}

	return strings.Join(parts, "|")
}

// topDirectory returns the first path element of a nested name, "." for
// names directly inside the watched directory and "" for overflow markers.
func topDirectory(name string) string {
	if name == "" {
		return ""
	}
	name = filepath.ToSlash(name)
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return "."
}

// percentile calculates the nth percentile of a sorted slice.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks.
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	// Interpolate.
	fraction := rank - float64(lower)
	return int64(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}
