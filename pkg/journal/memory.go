package journal

import (
	"sort"
	"sync"
	"time"
)

// memoryStore implements Store using an in-memory slice.
// Useful for testing.
type memoryStore struct {
	mu        sync.Mutex
	entries   []Entry
	seq       uint64
	retention int
	closed    bool
}

// NewMemoryStore creates an in-memory store.
//
// Useful for testing or when persistence is not needed.
func NewMemoryStore(retention int) Store {
	return &memoryStore{retention: retention}
}

// Append implements Store.Append.
func (s *memoryStore) Append(e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.seq++
	e.Seq = s.seq
	s.entries = append(s.entries, *e)

	if s.retention > 0 && len(s.entries) > s.retention {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.retention:]...)
	}
	return nil
}

// List implements Store.List.
func (s *memoryStore) List(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	start := 0
	if limit > 0 && len(s.entries) > limit {
		start = len(s.entries) - limit
	}
	return copyEntries(s.entries[start:]), nil
}

// Since implements Store.Since.
func (s *memoryStore) Since(seq uint64, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Seq > seq
	})
	end := len(s.entries)
	if limit > 0 && end-start > limit {
		end = start + limit
	}
	return copyEntries(s.entries[start:end]), nil
}

// Prune implements Store.Prune.
func (s *memoryStore) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if len(s.entries) <= keep {
		return 0, nil
	}

	removed := len(s.entries) - keep
	s.entries = append([]Entry(nil), s.entries[removed:]...)
	return removed, nil
}

// Count implements Store.Count.
func (s *memoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return len(s.entries), nil
}

// Clear implements Store.Clear.
func (s *memoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.entries = nil
	return nil
}

// Close implements Store.Close.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	return append([]Entry(nil), entries...)
}
