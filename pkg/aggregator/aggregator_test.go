package aggregator

import (
	"testing"
	"time"

	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func entry(offset time.Duration, action watcher.Action, name string) journal.Entry {
	return journal.Entry{
		Time:   base.Add(offset),
		Root:   "/watched",
		Action: action,
		Name:   name,
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	agg := New(Config{})
	if agg == nil {
		t.Fatal("New() returned nil")
	}

	stats := agg.Stats()
	if stats.Count != 0 {
		t.Errorf("Stats().Count = %d, want 0", stats.Count)
	}
	if len(agg.TopNames(5)) != 0 {
		t.Error("TopNames() on empty aggregator is not empty")
	}
}

func TestAdd_Counts(t *testing.T) {
	t.Parallel()

	agg := Summarize(Config{}, []journal.Entry{
		entry(0, watcher.ActionAdded, "a.txt"),
		entry(time.Second, watcher.ActionModified, "a.txt"),
		entry(2*time.Second, watcher.ActionModified, "a.txt"),
		entry(3*time.Second, watcher.ActionRenamedOldName, "a.txt"),
		entry(3*time.Second, watcher.ActionRenamedNewName, "b.txt"),
		entry(4*time.Second, watcher.ActionOverflow, ""),
		entry(5*time.Second, watcher.ActionRemoved, "b.txt"),
	})

	stats := agg.Stats()
	if stats.Count != 7 {
		t.Errorf("Count = %d, want 7", stats.Count)
	}
	if stats.Overflows != 1 {
		t.Errorf("Overflows = %d, want 1", stats.Overflows)
	}
	if stats.DistinctNames != 2 {
		t.Errorf("DistinctNames = %d, want 2", stats.DistinctNames)
	}

	wantActions := map[string]int{
		"ADDED":            1,
		"MODIFIED":         2,
		"RENAMED_OLD_NAME": 1,
		"RENAMED_NEW_NAME": 1,
		"OVERFLOW":         1,
		"REMOVED":          1,
	}
	for action, want := range wantActions {
		if got := stats.ByAction[action]; got != want {
			t.Errorf("ByAction[%s] = %d, want %d", action, got, want)
		}
	}

	if !stats.FirstSeen.Equal(base) {
		t.Errorf("FirstSeen = %v, want %v", stats.FirstSeen, base)
	}
	if !stats.LastSeen.Equal(base.Add(5 * time.Second)) {
		t.Errorf("LastSeen = %v", stats.LastSeen)
	}
}

func TestStats_ReturnsCopy(t *testing.T) {
	t.Parallel()

	agg := New(Config{})
	agg.Add(entry(0, watcher.ActionAdded, "x"))

	stats := agg.Stats()
	stats.ByAction["ADDED"] = 100

	if got := agg.Stats().ByAction["ADDED"]; got != 1 {
		t.Errorf("ByAction mutated through snapshot: %d", got)
	}
}

func TestTopNames(t *testing.T) {
	t.Parallel()

	agg := Summarize(Config{}, []journal.Entry{
		entry(0, watcher.ActionAdded, "hot.log"),
		entry(1*time.Second, watcher.ActionModified, "hot.log"),
		entry(2*time.Second, watcher.ActionModified, "hot.log"),
		entry(3*time.Second, watcher.ActionAdded, "warm.log"),
		entry(4*time.Second, watcher.ActionModified, "warm.log"),
		entry(5*time.Second, watcher.ActionAdded, "b-cold.log"),
		entry(6*time.Second, watcher.ActionAdded, "a-cold.log"),
		entry(7*time.Second, watcher.ActionOverflow, ""),
		entry(8*time.Second, watcher.ActionRemoved, "hot.log"),
	})

	top := agg.TopNames(3)
	if len(top) != 3 {
		t.Fatalf("TopNames(3) returned %d names", len(top))
	}

	if top[0].Name != "hot.log" || top[0].Count != 4 {
		t.Errorf("top[0] = %+v, want hot.log x4", top[0])
	}
	if top[0].LastAction != "REMOVED" {
		t.Errorf("top[0].LastAction = %s, want REMOVED", top[0].LastAction)
	}
	if top[1].Name != "warm.log" || top[1].Count != 2 {
		t.Errorf("top[1] = %+v, want warm.log x2", top[1])
	}
	// Ties are broken by name.
	if top[2].Name != "a-cold.log" {
		t.Errorf("top[2] = %+v, want a-cold.log", top[2])
	}

	if all := agg.TopNames(0); len(all) != 4 {
		t.Errorf("TopNames(0) returned %d names, want 4", len(all))
	}
}

func TestGroupedStats(t *testing.T) {
	t.Parallel()

	agg := Summarize(Config{
		GroupBy: []Dimension{DimDirectory, DimAction},
	}, []journal.Entry{
		entry(0, watcher.ActionAdded, "top.txt"),
		entry(time.Second, watcher.ActionAdded, "src/main.go"),
		entry(2*time.Second, watcher.ActionModified, "src/main.go"),
		entry(3*time.Second, watcher.ActionModified, "src/util/x.go"),
		entry(4*time.Second, watcher.ActionOverflow, ""),
	})

	groups := agg.GroupedStats()

	tests := []struct {
		key   string
		count int
	}{
		{".|ADDED", 1},
		{"src|ADDED", 1},
		{"src|MODIFIED", 2},
		{"|OVERFLOW", 1},
	}
	for _, tt := range tests {
		g, ok := groups[tt.key]
		if !ok {
			t.Errorf("group %q missing, have %v", tt.key, groups)
			continue
		}
		if g.Count != tt.count {
			t.Errorf("group %q Count = %d, want %d", tt.key, g.Count, tt.count)
		}
	}
	if len(groups) != len(tests) {
		t.Errorf("got %d groups, want %d", len(groups), len(tests))
	}

	if d := groups["src|MODIFIED"].DistinctNames; d != 2 {
		t.Errorf("src|MODIFIED DistinctNames = %d, want 2", d)
	}
}

func TestGroupedStats_TimeDimensions(t *testing.T) {
	t.Parallel()

	agg := Summarize(Config{
		GroupBy: []Dimension{DimDate, DimHour},
	}, []journal.Entry{
		entry(0, watcher.ActionAdded, "a"),
		entry(30*time.Minute, watcher.ActionAdded, "b"),
		entry(90*time.Minute, watcher.ActionAdded, "c"),
	})

	groups := agg.GroupedStats()
	if got := groups["2024-05-01|2024-05-01 10:00"].Count; got != 2 {
		t.Errorf("10:00 Count = %d, want 2", got)
	}
	if got := groups["2024-05-01|2024-05-01 11:00"].Count; got != 1 {
		t.Errorf("11:00 Count = %d, want 1", got)
	}
}

func TestIntervals(t *testing.T) {
	t.Parallel()

	entries := []journal.Entry{entry(0, watcher.ActionAdded, "f")}
	offset := time.Duration(0)
	for i := 1; i <= 100; i++ {
		offset += time.Duration(i) * time.Millisecond
		entries = append(entries, entry(offset, watcher.ActionModified, "f"))
	}

	stats := Summarize(Config{TrackIntervals: true}, entries).Stats()

	// Gaps are 1ms..100ms.
	if stats.IntervalP50 < 49*time.Millisecond || stats.IntervalP50 > 52*time.Millisecond {
		t.Errorf("IntervalP50 = %v, want ~50ms", stats.IntervalP50)
	}
	if stats.IntervalP95 < 94*time.Millisecond || stats.IntervalP95 > 96*time.Millisecond {
		t.Errorf("IntervalP95 = %v, want ~95ms", stats.IntervalP95)
	}
	if stats.IntervalP99 > 100*time.Millisecond {
		t.Errorf("IntervalP99 = %v, want <= 100ms", stats.IntervalP99)
	}

	untracked := Summarize(Config{}, entries).Stats()
	if untracked.IntervalP50 != 0 {
		t.Errorf("IntervalP50 without tracking = %v, want 0", untracked.IntervalP50)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	agg := New(Config{GroupBy: []Dimension{DimAction}})
	agg.Add(entry(0, watcher.ActionAdded, "a"))
	agg.Reset()

	if agg.Stats().Count != 0 {
		t.Error("Stats().Count after Reset != 0")
	}
	if len(agg.GroupedStats()) != 0 {
		t.Error("GroupedStats() after Reset not empty")
	}
	if len(agg.TopNames(0)) != 0 {
		t.Error("TopNames() after Reset not empty")
	}
}

func TestTopDirectory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"", ""},
		{"file.txt", "."},
		{"dir/file.txt", "dir"},
		{"a/b/c", "a"},
	}
	for _, tt := range tests {
		if got := topDirectory(tt.name); got != tt.want {
			t.Errorf("topDirectory(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	sorted := []int64{10, 20, 30, 40, 50}
	tests := []struct {
		p    int
		want int64
	}{
		{0, 10},
		{50, 30},
		{100, 50},
		{25, 20},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %d, want %d", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %d, want 0", got)
	}
}

func BenchmarkAdd(b *testing.B) {
	agg := New(Config{GroupBy: []Dimension{DimDirectory}, TrackIntervals: true})
	e := entry(0, watcher.ActionModified, "dir/file.txt")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Time = base.Add(time.Duration(i) * time.Millisecond)
		agg.Add(e)
	}
}
