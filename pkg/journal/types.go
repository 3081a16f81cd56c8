// Package journal provides a persistent, append-only record of observed
// directory changes.
//
// Every entry gets a monotonically increasing sequence number, so readers can
// resume with Since after a restart or reconnect. Retention bounds the
// journal size by dropping the oldest entries.
//
// Example usage:
//
//	store, err := journal.Open(journal.Config{
//	    DBPath:    "~/.config/folderwatch/journal.db",
//	    Retention: 10000,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	entry := &journal.Entry{Root: "/srv/inbox", Action: watcher.ActionAdded, Name: "a.txt"}
//	if err := store.Append(entry); err != nil {
//	    log.Fatal(err)
//	}
package journal

import (
	"time"

	"github.com/0xmhha/folderwatch/pkg/watcher"
)

// Entry is one recorded change.
type Entry struct {
	// Seq is assigned by Append and strictly increases.
	Seq uint64 `json:"seq"`

	// Time is when the change was observed. Append fills it in when zero.
	Time time.Time `json:"time"`

	// Root is the watched directory.
	Root string `json:"root"`

	// Action is the change kind. ActionOverflow marks lost changes.
	Action watcher.Action `json:"action"`

	// Name is relative to Root; empty for overflow entries.
	Name string `json:"name,omitempty"`
}

// Store persists entries.
type Store interface {
	// Append assigns the next sequence number to e and stores it.
	Append(e *Entry) error

	// List returns the newest limit entries, oldest first.
	// limit <= 0 returns every entry.
	List(limit int) ([]Entry, error)

	// Since returns up to limit entries with a sequence number greater than
	// seq, oldest first. limit <= 0 means no limit.
	Since(seq uint64, limit int) ([]Entry, error)

	// Prune removes the oldest entries until at most keep remain and returns
	// how many were removed.
	Prune(keep int) (int, error)

	// Count returns the number of stored entries.
	Count() (int, error)

	// Clear removes every entry. Sequence numbers keep increasing.
	Clear() error

	// Close releases the store.
	Close() error
}

// Config contains journal configuration.
type Config struct {
	// DBPath is the BoltDB file. A leading ~ is expanded.
	DBPath string

	// Retention is the maximum number of entries kept; 0 keeps everything.
	Retention int

	// Timeout bounds waiting for the database file lock.
	// Default: 1s.
	Timeout time.Duration
}
