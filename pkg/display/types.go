// Package display provides output formatting for directory changes.
//
// It supports multiple output formats (text, JSON, simple) for live change
// lines, journal history and change statistics.
package display

import (
	"io"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
)

// Format represents an output format.
type Format string

const (
	// FormatText displays aligned, optionally coloured text and tables.
	FormatText Format = "text"

	// FormatJSON displays one JSON document per call.
	FormatJSON Format = "json"

	// FormatSimple displays one plain line per item.
	FormatSimple Format = "simple"
)

// ColorMode selects when ANSI colours are used.
type ColorMode string

const (
	// ColorAuto colours output written to a terminal.
	ColorAuto ColorMode = "auto"

	// ColorAlways always colours output.
	ColorAlways ColorMode = "always"

	// ColorNever never colours output.
	ColorNever ColorMode = "never"
)

// Formatter formats changes and statistics.
type Formatter interface {
	// FormatEntry formats a single change as it happens.
	FormatEntry(w io.Writer, entry journal.Entry) error

	// FormatEntries formats a list of journal entries.
	FormatEntries(w io.Writer, entries []journal.Entry) error

	// FormatStats formats overall statistics.
	FormatStats(w io.Writer, stats aggregator.Statistics) error

	// FormatGroupedStats formats grouped statistics.
	//
	// Parameters:
	//   - w: Output writer
	//   - grouped: Grouped statistics to format
	//   - dimensions: Dimension names for display
	//
	// Returns error if formatting fails.
	FormatGroupedStats(w io.Writer, grouped map[string]aggregator.Statistics, dimensions []string) error

	// FormatTopNames formats the most frequently changed names.
	FormatTopNames(w io.Writer, names []aggregator.NameStats) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatText.
	Format Format

	// Color enables ANSI colours in text output. See ResolveColor.
	Color bool

	// ShowTimestamps enables timestamp display.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
