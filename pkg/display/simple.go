package display

import (
	"fmt"
	"io"
	"sort"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatEntry implements Formatter.FormatEntry.
func (f *simpleFormatter) FormatEntry(w io.Writer, entry journal.Entry) error {
	line := entry.Action.String()
	if entry.Name != "" {
		line += " " + entry.Name
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// FormatEntries implements Formatter.FormatEntries.
func (f *simpleFormatter) FormatEntries(w io.Writer, entries []journal.Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d %s %s %s\n",
			e.Seq,
			e.Time.Format("2006-01-02T15:04:05"),
			e.Action,
			e.Name); err != nil {
			return err
		}
	}
	return nil
}

// FormatStats implements Formatter.FormatStats.
func (f *simpleFormatter) FormatStats(w io.Writer, stats aggregator.Statistics) error {
	_, err := fmt.Fprintf(w, "Changes: %d | Names: %d | Overflows: %d | Added: %d | Removed: %d | Modified: %d | Renamed: %d\n",
		stats.Count,
		stats.DistinctNames,
		stats.Overflows,
		stats.ByAction["ADDED"],
		stats.ByAction["REMOVED"],
		stats.ByAction["MODIFIED"],
		stats.ByAction["RENAMED_NEW_NAME"])
	return err
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *simpleFormatter) FormatGroupedStats(w io.Writer, grouped map[string]aggregator.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		stats := grouped[key]
		if _, err := fmt.Fprintf(w, "%s: %d changes, %d names\n",
			key,
			stats.Count,
			stats.DistinctNames); err != nil {
			return err
		}
	}

	return nil
}

// FormatTopNames implements Formatter.FormatTopNames.
func (f *simpleFormatter) FormatTopNames(w io.Writer, names []aggregator.NameStats) error {
	for i, n := range names {
		if _, err := fmt.Fprintf(w, "#%d: %s - %d changes (last %s)\n",
			i+1,
			n.Name,
			n.Count,
			n.LastAction); err != nil {
			return err
		}
	}

	return nil
}
