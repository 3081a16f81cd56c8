package display

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// actionWidth is the length of the longest action name.
const actionWidth = len("RENAMED_OLD_NAME")

// textFormatter formats output as aligned text and tables.
type textFormatter struct {
	config Config
}

// FormatEntry implements Formatter.FormatEntry.
func (f *textFormatter) FormatEntry(w io.Writer, entry journal.Entry) error {
	action := fmt.Sprintf("%-*s", actionWidth, entry.Action.String())
	line := colorize(f.config.Color, entry.Action, action) + "  " + entryName(entry.Name, entry.Action)

	if f.config.ShowTimestamps {
		line = entry.Time.Format("15:04:05.000") + "  " + line
	}

	_, err := fmt.Fprintln(w, line)
	return err
}

// FormatEntries implements Formatter.FormatEntries.
func (f *textFormatter) FormatEntries(w io.Writer, entries []journal.Entry) error {
	if err := writeHeader(w, "Change History", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Seq", "Time", "Action", "Name"}
	rows := make([][]string, len(entries))
	actions := make([]watcher.Action, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			fmt.Sprintf("%d", e.Seq),
			e.Time.Format("2006-01-02 15:04:05"),
			e.Action.String(),
			entryName(e.Name, e.Action),
		}
		actions[i] = e.Action
	}

	return f.writeTable(w, header, rows, actions, 2)
}

// FormatStats implements Formatter.FormatStats.
func (f *textFormatter) FormatStats(w io.Writer, stats aggregator.Statistics) error {
	if err := writeHeader(w, "Change Statistics", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Changes", formatNumber(stats.Count)},
		{"Distinct Names", formatNumber(stats.DistinctNames)},
		{"Overflows", formatNumber(stats.Overflows)},
	}

	for _, action := range sortedActions(stats.ByAction) {
		rows = append(rows, []string{"  " + action, formatNumber(stats.ByAction[action])})
	}

	if stats.IntervalP50 > 0 || stats.IntervalP95 > 0 {
		rows = append(rows,
			[]string{"Interval P50", formatDuration(stats.IntervalP50)},
			[]string{"Interval P95", formatDuration(stats.IntervalP95)},
			[]string{"Interval P99", formatDuration(stats.IntervalP99)},
		)
	}

	if f.config.ShowTimestamps && !stats.FirstSeen.IsZero() {
		rows = append(rows,
			[]string{"First Seen", stats.FirstSeen.Format("2006-01-02 15:04:05")},
			[]string{"Last Seen", stats.LastSeen.Format("2006-01-02 15:04:05")},
		)
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows, nil, -1)
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *textFormatter) FormatGroupedStats(w io.Writer, grouped map[string]aggregator.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}

	if err := writeHeader(w, "Grouped Statistics", f.config.Compact); err != nil {
		return err
	}

	// Build header.
	header := make([]string, len(dimensions)+3)
	copy(header, dimensions)
	header[len(dimensions)] = "Changes"
	header[len(dimensions)+1] = "Names"
	header[len(dimensions)+2] = "Overflows"

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Build rows.
	rows := make([][]string, 0, len(grouped))
	for _, key := range keys {
		stats := grouped[key]
		row := make([]string, len(header))

		// Parse key into dimension values.
		parts := strings.Split(key, "|")
		for i, part := range parts {
			if i < len(dimensions) {
				row[i] = part
			}
		}

		row[len(dimensions)] = formatNumber(stats.Count)
		row[len(dimensions)+1] = formatNumber(stats.DistinctNames)
		row[len(dimensions)+2] = formatNumber(stats.Overflows)

		rows = append(rows, row)
	}

	return f.writeTable(w, header, rows, nil, -1)
}

// FormatTopNames implements Formatter.FormatTopNames.
func (f *textFormatter) FormatTopNames(w io.Writer, names []aggregator.NameStats) error {
	if err := writeHeader(w, "Most Changed Names", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Rank", "Name", "Changes", "Last Action", "Last Seen"}

	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{
			fmt.Sprintf("#%d", i+1),
			n.Name,
			formatNumber(n.Count),
			n.LastAction,
			n.LastSeen.Format("2006-01-02 15:04:05"),
		}
	}

	return f.writeTable(w, header, rows, nil, -1)
}

// writeTable writes a formatted table. When actions is set, the cells of
// column colorCol are coloured by the action of their row.
func (f *textFormatter) writeTable(w io.Writer, header []string, rows [][]string, actions []watcher.Action, colorCol int) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths, nil, -1); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths, nil, -1); err != nil {
			return err
		}
	}

	// Write rows.
	for i, row := range rows {
		var action *watcher.Action
		if i < len(actions) {
			action = &actions[i]
		}
		if err := f.writeRow(w, row, widths, action, colorCol); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *textFormatter) writeRow(w io.Writer, cells []string, widths []int, action *watcher.Action, colorCol int) error {
	for i, cell := range cells {
		if i > 0 {
			sep := "  "
			if f.config.Compact {
				sep = " "
			}
			if _, err := fmt.Fprint(w, sep); err != nil {
				return err
			}
		}

		padded := fmt.Sprintf("%-*s", widths[i], cell)
		if action != nil && i == colorCol {
			padded = colorize(f.config.Color, *action, padded)
		}
		if _, err := fmt.Fprint(w, padded); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

// sortedActions returns the action names of byAction in a stable order.
func sortedActions(byAction map[string]int) []string {
	actions := make([]string, 0, len(byAction))
	for a := range byAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(100 * time.Microsecond).String()
	default:
		return d.String()
	}
}
