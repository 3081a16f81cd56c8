package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// Bucket names.
var (
	bucketChanges = []byte("changes") // Seq (big endian) -> Entry JSON
)

// boltStore implements Store using BoltDB.
type boltStore struct {
	db     *bolt.DB
	logger logger.Logger
	config Config

	mu     sync.Mutex
	count  int
	closed bool
}

// Open opens or creates the journal database.
//
// Parameters:
//   - cfg: Journal configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Store
//   - Error if database cannot be opened
func Open(cfg Config, log logger.Logger) (Store, error) {
	if cfg.DBPath == "" {
		return nil, ErrEmptyPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if log == nil {
		log = logger.Noop()
	}

	dbPath := expandHome(cfg.DBPath)

	// Create directory if it doesn't exist.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	if err := db.Update(func(tx *bolt.Tx) error {
		b, createErr := tx.CreateBucketIfNotExists(bucketChanges)
		if createErr != nil {
			return fmt.Errorf("failed to create changes bucket: %w", createErr)
		}
		count = b.Stats().KeyN
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Info("change journal opened", "db_path", dbPath, "entries", count)

	return &boltStore{
		db:     db,
		logger: log,
		config: cfg,
		count:  count,
	}, nil
}

// Append implements Store.Append.
func (s *boltStore) Append(e *Entry) error {
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

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		e.Seq = seq

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if err := b.Put(itob(seq), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}

		if s.config.Retention > 0 && s.count+1 > s.config.Retention {
			removed, err = deleteOldest(b, s.count+1-s.config.Retention)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.Seq = 0
		return err
	}

	s.count += 1 - removed
	return nil
}

// List implements Store.List.
func (s *boltStore) List(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChanges).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", btoi(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Since implements Store.Since.
func (s *boltStore) Since(seq uint64, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if seq == math.MaxUint64 {
		return nil, nil
	}

	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChanges).Cursor()
		for k, v := c.Seek(itob(seq + 1)); k != nil; k, v = c.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", btoi(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune implements Store.Prune.
func (s *boltStore) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.count <= keep {
		return 0, nil
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = deleteOldest(tx.Bucket(bucketChanges), s.count-keep)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.count -= removed
	s.logger.Debug("journal pruned", "removed", removed, "remaining", s.count)
	return removed, nil
}

// Count implements Store.Count.
func (s *boltStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.count, nil
}

// Clear implements Store.Clear. Entries are deleted one by one so the
// bucket sequence survives.
func (s *boltStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := deleteOldest(tx.Bucket(bucketChanges), s.count)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("journal cleared", "removed", s.count)
	s.count = 0
	return nil
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// deleteOldest removes up to n entries from the start of b.
func deleteOldest(b *bolt.Bucket, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	// Collect first: deleting while iterating makes the cursor skip keys.
	keys := make([][]byte, 0, n)
	c := b.Cursor()
	for k, _ := c.First(); k != nil && len(keys) < n; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, fmt.Errorf("failed to delete entry %d: %w", btoi(k), err)
		}
	}
	return len(keys), nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, strings.TrimPrefix(path, "~/"))
}
