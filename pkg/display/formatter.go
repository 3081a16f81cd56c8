package display

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// New creates a new formatter based on configuration.
//
// Parameters:
//   - cfg: Formatter configuration
//
// Returns a configured Formatter.
func New(cfg Config) Formatter {
	// Set defaults.
	if cfg.Format == "" {
		cfg.Format = FormatText
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	case FormatText:
		fallthrough
	default:
		return &textFormatter{config: cfg}
	}
}

// ResolveColor decides whether output to w is coloured. ColorAuto colours
// only terminals, and honours NO_COLOR.
func ResolveColor(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ANSI escape sequences.
const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// actionColor returns the escape sequence used for an action.
func actionColor(a watcher.Action) string {
	switch a {
	case watcher.ActionAdded:
		return ansiGreen
	case watcher.ActionRemoved:
		return ansiRed
	case watcher.ActionModified:
		return ansiYellow
	case watcher.ActionRenamedOldName, watcher.ActionRenamedNewName:
		return ansiCyan
	case watcher.ActionOverflow:
		return ansiBold + ansiMagenta
	default:
		return ""
	}
}

// colorize wraps s in the colour of a when enabled.
func colorize(enabled bool, a watcher.Action, s string) string {
	c := actionColor(a)
	if !enabled || c == "" {
		return s
	}
	return c + s + ansiReset
}

// entryName returns the displayed name of an entry.
func entryName(name string, a watcher.Action) string {
	if a == watcher.ActionOverflow {
		return "(changes lost, rescan required)"
	}
	return name
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Convert to string and add commas.
	s := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// validateDimensions validates dimension names.
func validateDimensions(dimensions []string) error {
	if len(dimensions) == 0 {
		return fmt.Errorf("no dimensions specified")
	}
	return nil
}

// writeHeader writes a section header.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}

	separator := ""
	for i := 0; i < len(title); i++ {
		separator += "="
	}

	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, separator)
	return err
}
