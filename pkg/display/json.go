package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// FormatEntry implements Formatter.FormatEntry. Entries are always written
// as one object per line so the output can be consumed as JSON lines.
func (f *jsonFormatter) FormatEntry(w io.Writer, entry journal.Entry) error {
	return json.NewEncoder(w).Encode(entry)
}

// FormatEntries implements Formatter.FormatEntries.
func (f *jsonFormatter) FormatEntries(w io.Writer, entries []journal.Entry) error {
	if entries == nil {
		entries = []journal.Entry{}
	}
	return f.encoder(w).Encode(entries)
}

// FormatStats implements Formatter.FormatStats.
func (f *jsonFormatter) FormatStats(w io.Writer, stats aggregator.Statistics) error {
	return f.encoder(w).Encode(stats)
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *jsonFormatter) FormatGroupedStats(w io.Writer, grouped map[string]aggregator.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}

	return f.encoder(w).Encode(grouped)
}

// FormatTopNames implements Formatter.FormatTopNames.
func (f *jsonFormatter) FormatTopNames(w io.Writer, names []aggregator.NameStats) error {
	if names == nil {
		names = []aggregator.NameStats{}
	}
	return f.encoder(w).Encode(names)
}

func (f *jsonFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder
}
