// Package watcher watches a single directory subtree through the operating
// system's completion based change notification facility.
//
// A Watcher owns one open directory handle, one page sized notification
// buffer and at most one outstanding read-changes operation. Every completion
// is decoded into records that are handed to the user callback in the order
// the operating system wrote them, after which the request is issued again
// ("rearmed"). Failures never surface as errors: the watcher logs a warning
// and goes permanently inactive.
//
// Completions are delivered through a Port. The Port never runs user code on
// its own; the caller pumps it with Run or Poll and callbacks execute on the
// pumping goroutine, one completion at a time.
//
// Example usage:
//
//	port, err := watcher.NewPort(watcher.PortConfig{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	w := watcher.New(port, watcher.Config{
//	    Path:   dir,
//	    Filter: watcher.FilterNameChanges,
//	    Callback: func(_ any, action watcher.Action, name string) {
//	        fmt.Println(action, name)
//	    },
//	    Logger: log,
//	})
//	defer w.Close()
//
//	return port.Run(ctx)
package watcher

import (
	"fmt"
	"strings"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// Action is the change code reported for one record.
type Action uint32

// Change actions. The values match FILE_ACTION_* on Windows.
const (
	// ActionOverflow is reported once, with an empty name, when more changes
	// happened than the buffer could describe. Callers should rescan.
	ActionOverflow Action = iota
	ActionAdded
	ActionRemoved
	ActionModified
	ActionRenamedOldName
	ActionRenamedNewName
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionOverflow:
		return "OVERFLOW"
	case ActionAdded:
		return "ADDED"
	case ActionRemoved:
		return "REMOVED"
	case ActionModified:
		return "MODIFIED"
	case ActionRenamedOldName:
		return "RENAMED_OLD_NAME"
	case ActionRenamedNewName:
		return "RENAMED_NEW_NAME"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for candidate := ActionOverflow; candidate <= ActionRenamedNewName; candidate++ {
		if candidate.String() == name {
			*a = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, string(text))
}

// Filter selects which change categories are observed.
type Filter uint32

// Change categories. The values match FILE_NOTIFY_CHANGE_* on Windows.
const (
	FilterFileName   Filter = 0x001
	FilterDirName    Filter = 0x002
	FilterAttributes Filter = 0x004
	FilterSize       Filter = 0x008
	FilterLastWrite  Filter = 0x010
	FilterLastAccess Filter = 0x020
	FilterCreation   Filter = 0x040
	FilterSecurity   Filter = 0x100

	// FilterNameChanges observes creation, deletion and renames.
	FilterNameChanges = FilterFileName | FilterDirName

	// FilterAll observes every category.
	FilterAll = FilterFileName | FilterDirName | FilterAttributes | FilterSize |
		FilterLastWrite | FilterLastAccess | FilterCreation | FilterSecurity

	// DefaultFilter is used when Config.Filter is zero.
	DefaultFilter = FilterNameChanges | FilterLastWrite | FilterSize
)

var filterNames = []struct {
	name   string
	filter Filter
}{
	{"file_name", FilterFileName},
	{"dir_name", FilterDirName},
	{"attributes", FilterAttributes},
	{"size", FilterSize},
	{"last_write", FilterLastWrite},
	{"last_access", FilterLastAccess},
	{"creation", FilterCreation},
	{"security", FilterSecurity},
}

// ParseFilter builds a Filter from category names such as "file_name" or
// "last_write". "name" is shorthand for file and directory names and "all"
// selects every category.
func ParseFilter(names []string) (Filter, error) {
	var f Filter
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "name", "names":
			f |= FilterNameChanges
			continue
		case "all":
			f |= FilterAll
			continue
		}

		found := false
		for _, fn := range filterNames {
			if fn.name == name {
				f |= fn.filter
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrUnknownFilter, raw)
		}
	}
	return f, nil
}

// String returns the category names joined by "|".
func (f Filter) String() string {
	if f == 0 {
		return "NONE"
	}

	parts := make([]string, 0, len(filterNames))
	for _, fn := range filterNames {
		if f&fn.filter != 0 {
			parts = append(parts, fn.name)
		}
	}
	if rest := f &^ FilterAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Callback receives one change. userData is the value given in Config.
//
// The callback runs synchronously on the goroutine pumping the Port. It may
// call Close on its own watcher; the rest of the batch is then skipped.
type Callback func(userData any, action Action, name string)

// State is the lifecycle state of a Watcher.
type State int32

const (
	// StateInactive is terminal: no handle, no buffer, no further callbacks.
	StateInactive State = iota

	// StateActive means the handle and buffer are valid and a request is
	// outstanding or about to be reissued.
	StateActive
)

// String returns a human-readable state name.
func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

// Record is one decoded change.
type Record struct {
	Action Action
	// Name is relative to the watched directory.
	Name string
}

// Config contains watcher configuration.
type Config struct {
	// Path is the directory to watch.
	Path string

	// Recursive also watches subdirectories.
	Recursive bool

	// Filter selects the observed change categories.
	// Default: DefaultFilter.
	Filter Filter

	// Callback is invoked once per change. A nil callback discards changes.
	Callback Callback

	// UserData is passed through to every callback invocation.
	UserData any

	// Logger receives warnings for every failure path.
	// Default: logger.Noop().
	Logger logger.Logger
}
