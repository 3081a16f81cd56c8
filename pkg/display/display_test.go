package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

var at = time.Date(2024, 1, 1, 10, 30, 15, 0, time.UTC)

func sampleEntries() []journal.Entry {
	return []journal.Entry{
		{Seq: 1, Time: at, Root: "/w", Action: watcher.ActionAdded, Name: "a.txt"},
		{Seq: 2, Time: at.Add(time.Second), Root: "/w", Action: watcher.ActionRenamedOldName, Name: "a.txt"},
		{Seq: 3, Time: at.Add(time.Second), Root: "/w", Action: watcher.ActionRenamedNewName, Name: "b.txt"},
		{Seq: 4, Time: at.Add(2 * time.Second), Root: "/w", Action: watcher.ActionOverflow},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (text)",
			config: Config{},
			want:   "*display.textFormatter",
		},
		{
			name:   "text format",
			config: Config{Format: FormatText},
			want:   "*display.textFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextFormatter_FormatEntry(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	formatter := New(Config{Format: FormatText, ShowTimestamps: true})
	if err := formatter.FormatEntry(&buf, sampleEntries()[0]); err != nil {
		t.Fatalf("FormatEntry() error = %v", err)
	}

	output := buf.String()
	if !strings.HasPrefix(output, "10:30:15.000  ADDED") {
		t.Errorf("FormatEntry() = %q", output)
	}
	if !strings.HasSuffix(output, "a.txt\n") {
		t.Errorf("FormatEntry() missing name: %q", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Error("colour codes written with colour disabled")
	}
}

func TestTextFormatter_Color(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	formatter := New(Config{Format: FormatText, Color: true})

	for _, e := range sampleEntries() {
		if err := formatter.FormatEntry(&buf, e); err != nil {
			t.Fatalf("FormatEntry() error = %v", err)
		}
	}

	output := buf.String()
	if !strings.Contains(output, ansiGreen+"ADDED") {
		t.Error("ADDED not coloured green")
	}
	if !strings.Contains(output, ansiCyan+"RENAMED_NEW_NAME") {
		t.Error("RENAMED_NEW_NAME not coloured cyan")
	}
	if !strings.Contains(output, "rescan required") {
		t.Error("overflow marker not described")
	}
	if strings.Count(output, ansiReset) != 4 {
		t.Errorf("got %d resets, want 4", strings.Count(output, ansiReset))
	}
}

func TestTextFormatter_FormatEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	formatter := New(Config{Format: FormatText})
	if err := formatter.FormatEntries(&buf, sampleEntries()); err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"Change History", "Seq", "2024-01-01 10:30:15", "RENAMED_OLD_NAME", "b.txt"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}

	buf.Reset()
	if err := formatter.FormatEntries(&buf, nil); err != nil {
		t.Fatalf("FormatEntries(nil) error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Error("empty history not reported")
	}
}

func TestTextFormatter_FormatStats(t *testing.T) {
	t.Parallel()

	formatter := New(Config{
		Format:         FormatText,
		ShowTimestamps: true,
	})

	stats := aggregator.Statistics{
		Count:         1500,
		Overflows:     2,
		DistinctNames: 40,
		ByAction:      map[string]int{"ADDED": 1000, "MODIFIED": 498, "OVERFLOW": 2},
		IntervalP50:   12 * time.Millisecond,
		IntervalP95:   340 * time.Millisecond,
		IntervalP99:   2 * time.Second,
		FirstSeen:     at,
		LastSeen:      at.Add(time.Hour),
	}

	var buf bytes.Buffer
	if err := formatter.FormatStats(&buf, stats); err != nil {
		t.Fatalf("FormatStats() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"1,500", "1,000", "Overflows", "Interval P95", "340ms", "2024-01-01"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestTextFormatter_FormatGroupedStats(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatText})

	grouped := map[string]aggregator.Statistics{
		"src|MODIFIED": {Count: 7500, DistinctNames: 12},
		".|ADDED":      {Count: 3, DistinctNames: 3},
	}

	var buf bytes.Buffer
	if err := formatter.FormatGroupedStats(&buf, grouped, []string{"Directory", "Action"}); err != nil {
		t.Fatalf("FormatGroupedStats() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "7,500") {
		t.Error("output missing src count")
	}
	if strings.Index(output, ".  ") > strings.Index(output, "src") {
		t.Error("groups not sorted by key")
	}

	if err := formatter.FormatGroupedStats(&buf, grouped, nil); err == nil {
		t.Error("FormatGroupedStats() without dimensions should fail")
	}
}

func TestTextFormatter_FormatTopNames(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatText})

	names := []aggregator.NameStats{
		{Name: "hot.log", Count: 1200, LastAction: "MODIFIED", LastSeen: at},
		{Name: "cold.log", Count: 2, LastAction: "ADDED", LastSeen: at},
	}

	var buf bytes.Buffer
	if err := formatter.FormatTopNames(&buf, names); err != nil {
		t.Fatalf("FormatTopNames() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"#1", "#2", "hot.log", "1,200", "MODIFIED"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestJSONFormatter_FormatEntry(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	formatter := New(Config{Format: FormatJSON})
	for _, e := range sampleEntries() {
		if err := formatter.FormatEntry(&buf, e); err != nil {
			t.Fatalf("FormatEntry() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}

	var decoded journal.Entry
	if err := json.Unmarshal([]byte(lines[2]), &decoded); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if decoded.Action != watcher.ActionRenamedNewName || decoded.Name != "b.txt" || decoded.Seq != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
	if !strings.Contains(lines[0], `"action":"ADDED"`) {
		t.Errorf("action not encoded by name: %s", lines[0])
	}
}

func TestJSONFormatter_Empty(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON, Compact: true})

	var buf bytes.Buffer
	if err := formatter.FormatEntries(&buf, nil); err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("FormatEntries(nil) = %q, want []", buf.String())
	}

	buf.Reset()
	if err := formatter.FormatTopNames(&buf, nil); err != nil {
		t.Fatalf("FormatTopNames() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("FormatTopNames(nil) = %q, want []", buf.String())
	}
}

func TestJSONFormatter_FormatStats(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON})

	var buf bytes.Buffer
	if err := formatter.FormatStats(&buf, aggregator.Statistics{
		Count:    3,
		ByAction: map[string]int{"ADDED": 3},
	}); err != nil {
		t.Fatalf("FormatStats() error = %v", err)
	}

	var decoded aggregator.Statistics
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Count != 3 || decoded.ByAction["ADDED"] != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatSimple})
	entries := sampleEntries()

	var buf bytes.Buffer
	for _, e := range entries {
		if err := formatter.FormatEntry(&buf, e); err != nil {
			t.Fatalf("FormatEntry() error = %v", err)
		}
	}
	want := "ADDED a.txt\nRENAMED_OLD_NAME a.txt\nRENAMED_NEW_NAME b.txt\nOVERFLOW\n"
	if buf.String() != want {
		t.Errorf("FormatEntry() output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := formatter.FormatEntries(&buf, entries[:1]); err != nil {
		t.Fatalf("FormatEntries() error = %v", err)
	}
	if buf.String() != "1 2024-01-01T10:30:15 ADDED a.txt\n" {
		t.Errorf("FormatEntries() = %q", buf.String())
	}

	buf.Reset()
	if err := formatter.FormatStats(&buf, aggregator.Statistics{
		Count:    5,
		ByAction: map[string]int{"ADDED": 4, "REMOVED": 1},
	}); err != nil {
		t.Fatalf("FormatStats() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Changes: 5") || !strings.Contains(buf.String(), "Added: 4") {
		t.Errorf("FormatStats() = %q", buf.String())
	}

	buf.Reset()
	if err := formatter.FormatTopNames(&buf, []aggregator.NameStats{{Name: "x", Count: 2, LastAction: "ADDED"}}); err != nil {
		t.Fatalf("FormatTopNames() error = %v", err)
	}
	if buf.String() != "#1: x - 2 changes (last ADDED)\n" {
		t.Errorf("FormatTopNames() = %q", buf.String())
	}
}

func TestResolveColor(t *testing.T) {
	var buf bytes.Buffer

	if !ResolveColor(ColorAlways, &buf) {
		t.Error("ColorAlways should colour any writer")
	}
	if ResolveColor(ColorNever, os.Stdout) {
		t.Error("ColorNever should never colour")
	}
	if ResolveColor(ColorAuto, &buf) {
		t.Error("ColorAuto should not colour a buffer")
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if ResolveColor(ColorAuto, f) {
		t.Error("ColorAuto should not colour a regular file")
	}

	t.Setenv("NO_COLOR", "1")
	if ResolveColor(ColorAuto, os.Stdout) {
		t.Error("ColorAuto should honour NO_COLOR")
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
