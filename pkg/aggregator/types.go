// Package aggregator provides change statistics over journal entries.
//
// It counts changes per action, tracks which names change most often and
// measures the spacing between consecutive changes, overall and grouped by
// configurable dimensions.
//
// Example usage:
//
//	agg := aggregator.New(aggregator.Config{
//	    GroupBy: []aggregator.Dimension{aggregator.DimDirectory},
//	})
//
//	for _, entry := range entries {
//	    agg.Add(entry)
//	}
//
//	stats := agg.Stats()
//	fmt.Printf("Changes: %d\n", stats.Count)
//	fmt.Printf("Overflows: %d\n", stats.Overflows)
package aggregator

import (
	"time"

	"github.com/0xmhha/folderwatch/pkg/journal"
)

// Dimension represents an aggregation dimension.
type Dimension string

const (
	// DimAction aggregates by change action.
	DimAction Dimension = "action"

	// DimDirectory aggregates by the top level directory of the name.
	DimDirectory Dimension = "directory"

	// DimDate aggregates by date (YYYY-MM-DD).
	DimDate Dimension = "date"

	// DimHour aggregates by hour (YYYY-MM-DD HH:00).
	DimHour Dimension = "hour"
)

// Aggregator computes change statistics.
type Aggregator interface {
	// Add adds a journal entry to the aggregator.
	Add(entry journal.Entry)

	// Stats returns statistics across all entries.
	Stats() Statistics

	// GroupedStats returns statistics grouped by the configured dimensions,
	// keyed by the dimension values joined with "|".
	GroupedStats() map[string]Statistics

	// TopNames returns the n most frequently changed names, most changes
	// first. n <= 0 returns every name.
	TopNames(n int) []NameStats

	// Reset clears all aggregated data.
	Reset()
}

// Statistics contains aggregated change statistics.
type Statistics struct {
	// Count is the number of entries, overflow markers included.
	Count int `json:"count"`

	// Overflows is the number of overflow markers.
	Overflows int `json:"overflows"`

	// ByAction counts entries per action name.
	ByAction map[string]int `json:"by_action"`

	// DistinctNames is the number of different names seen.
	DistinctNames int `json:"distinct_names"`

	// IntervalP50 is the median spacing between consecutive entries.
	IntervalP50 time.Duration `json:"interval_p50"`

	// IntervalP95 is the 95th percentile spacing.
	IntervalP95 time.Duration `json:"interval_p95"`

	// IntervalP99 is the 99th percentile spacing.
	IntervalP99 time.Duration `json:"interval_p99"`

	// FirstSeen is the timestamp of the first entry.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is the timestamp of the last entry.
	LastSeen time.Time `json:"last_seen"`
}

// NameStats contains statistics for a single name.
type NameStats struct {
	// Name is relative to the watched directory.
	Name string `json:"name"`

	// Count is the number of changes to Name.
	Count int `json:"count"`

	// LastAction is the most recent action reported for Name.
	LastAction string `json:"last_action"`

	// LastSeen is the timestamp of the most recent change.
	LastSeen time.Time `json:"last_seen"`
}

// Config contains aggregator configuration.
type Config struct {
	// GroupBy specifies aggregation dimensions.
	//
	// Examples:
	//   - [DimAction] - aggregate by action
	//   - [DimDirectory, DimAction] - aggregate by directory and action
	//   - [DimDate] - aggregate by date
	//
	// Default: no grouping (overall stats only).
	GroupBy []Dimension

	// TrackIntervals enables interval percentile calculation.
	//
	// Percentile calculation requires storing every interval in memory,
	// so disable if memory is a concern.
	TrackIntervals bool
}
