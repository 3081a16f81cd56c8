//go:build !windows

package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// renamePairWindow bounds how long the old name of a rename waits for the
// new name. The kernel reports both halves together, so an old name that is
// still alone after the window was moved out of the tree.
const renamePairWindow = 25 * time.Millisecond

// fsnotifyBackend emulates overlapped directory reads on top of fsnotify.
// Every handle queues kernel events between requests, the way the Windows
// kernel does for ReadDirectoryChangesW, and writes them into the request
// buffer in the same record layout.
type fsnotifyBackend struct {
	logger logger.Logger
}

func newPlatformBackend(log logger.Logger) (Backend, error) {
	return &fsnotifyBackend{logger: log}, nil
}

// Open implements Backend.Open.
func (b *fsnotifyBackend) Open(dir string, recursive bool) (Handle, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(root); err != nil {
		_ = fsw.Close() // nolint:errcheck
		return nil, fmt.Errorf("failed to add path: %w", err)
	}

	h := &fsnotifyHandle{
		fsw:       fsw,
		root:      root,
		recursive: recursive,
		logger:    b.logger.With("path", root),
		filter:    FilterAll,
		capacity:  DefaultBufferSize(),
		dirs:      make(map[string]struct{}),
		kick:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}

	if recursive {
		h.addTree(root)
	} else {
		h.trackChildren(root)
	}

	h.wg.Add(1)
	go h.run()

	return h, nil
}

// Alloc implements Backend.Alloc.
func (b *fsnotifyBackend) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	return make([]byte, size), nil
}

// Free implements Backend.Free.
func (b *fsnotifyBackend) Free([]byte) error {
	return nil
}

// Close implements Backend.Close.
func (b *fsnotifyBackend) Close() error {
	return nil
}

// fsnotifyHandle is one watched directory tree.
type fsnotifyHandle struct {
	fsw       *fsnotify.Watcher
	root      string
	recursive bool
	logger    logger.Logger

	kick chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	op       *Operation
	filter   Filter
	capacity int
	closed   bool
	canceled bool

	// Changes observed while no request was outstanding.
	pending      []Record
	pendingBytes int
	overflowed   bool
	fatal        error

	// dirs holds the names of directories known below root, so removals
	// can be reported under the directory or file name category.
	dirs map[string]struct{}

	// held is the old name of a rename waiting for its new name.
	held      *heldRename
	heldFresh bool

	// echo is a directory name whose duplicate self event is still due.
	// A moved directory may report it under its new name, echoMoved.
	echo      string
	echoMoved string
}

type heldRename struct {
	name  string
	isDir bool
}

// Arm implements Handle.Arm. The request is always completed from the
// handle goroutine, never from inside Arm.
func (h *fsnotifyHandle) Arm(op *Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.op != nil {
		return ErrAlreadyArmed
	}
	if len(op.Buffer) < recordHeaderSize {
		return fmt.Errorf("notification buffer too small: %d bytes", len(op.Buffer))
	}

	h.op = op
	h.filter = op.Filter
	h.capacity = len(op.Buffer)
	h.signal()
	return nil
}

// Cancel implements Handle.Cancel.
func (h *fsnotifyHandle) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.op != nil {
		h.canceled = true
		h.signal()
	}
	return nil
}

// Close implements Handle.Close.
func (h *fsnotifyHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.quit)
	err := h.fsw.Close()
	h.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close fsnotify watcher: %w", err)
	}
	return nil
}

func (h *fsnotifyHandle) signal() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *fsnotifyHandle) run() {
	defer h.wg.Done()

	var expire <-chan time.Time
	for {
		select {
		case <-h.quit:
			return

		case event, ok := <-h.fsw.Events:
			if !ok {
				return
			}
			h.mu.Lock()
			h.handleEvent(event)

		case err, ok := <-h.fsw.Errors:
			if !ok {
				return
			}
			h.mu.Lock()
			h.handleError(err)

		case <-h.kick:
			h.mu.Lock()

		case <-expire:
			h.mu.Lock()
			h.releaseHeld()
		}

		switch {
		case h.heldFresh:
			h.heldFresh = false
			expire = time.After(renamePairWindow)
		case h.held == nil:
			expire = nil
		}

		op, n, err := h.flushLocked()
		h.mu.Unlock()

		if op != nil {
			op.Complete(n, err)
		}
	}
}

// flushLocked detaches the outstanding request if there is something to
// report for it. h.mu must be held; the caller completes the request after
// unlocking.
func (h *fsnotifyHandle) flushLocked() (*Operation, int, error) {
	op := h.op
	if op == nil {
		return nil, 0, nil
	}

	switch {
	case h.canceled:
		h.canceled = false
		h.op = nil
		return op, 0, ErrOperationAborted

	case h.fatal != nil:
		h.op = nil
		return op, 0, h.fatal

	case h.overflowed:
		h.overflowed = false
		h.op = nil
		return op, 0, ErrOverflow

	case len(h.pending) > 0:
		n, consumed := EncodeRecords(op.Buffer, h.pending)
		if consumed == 0 {
			// A single name longer than the buffer cannot be described.
			h.pending = nil
			h.pendingBytes = 0
			h.op = nil
			return op, 0, ErrOverflow
		}
		for _, r := range h.pending[:consumed] {
			h.pendingBytes -= encodedSize(r)
		}
		h.pending = h.pending[consumed:]
		h.op = nil
		return op, n, nil
	}

	return nil, 0, nil
}

func (h *fsnotifyHandle) handleEvent(event fsnotify.Event) {
	name, ok := h.relative(event.Name)
	if !ok {
		return
	}

	if name == "." {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			h.fatal = ErrDirectoryRemoved
		}
		return
	}
	if !h.recursive && strings.ContainsRune(name, filepath.Separator) {
		return
	}

	gone := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)

	// A watched subdirectory reports its own removal or move a second time.
	echo, moved := h.echo, h.echoMoved
	h.echo, h.echoMoved = "", ""
	if (gone && name == echo) || (event.Has(fsnotify.Rename) && name == moved) {
		return
	}

	if h.held != nil {
		if gone && name == h.held.name {
			return
		}
		if event.Has(fsnotify.Create) {
			h.pairRename(event.Name, name)
			return
		}
		h.releaseHeld()
	}

	switch {
	case event.Has(fsnotify.Create):
		isDir := h.created(event.Name, name)
		h.queue(Record{Action: ActionAdded, Name: name}, nameFilter(isDir))

	case event.Has(fsnotify.Rename):
		h.held = &heldRename{name: name, isDir: h.isDir(name)}
		h.heldFresh = true

	case event.Has(fsnotify.Remove):
		isDir := h.forget(name)
		h.queue(Record{Action: ActionRemoved, Name: name}, nameFilter(isDir))

	case event.Has(fsnotify.Write):
		h.queue(Record{Action: ActionModified, Name: name}, FilterLastWrite|FilterSize)

	case event.Has(fsnotify.Chmod):
		h.queue(Record{Action: ActionModified, Name: name}, FilterAttributes|FilterSecurity)

	default:
		h.logger.Debug("unknown fsnotify operation", "op", event.Op, "name", name)
	}
}

// pairRename reports the held old name together with its new name.
func (h *fsnotifyHandle) pairRename(path, name string) {
	old := h.held
	h.held = nil

	h.forget(old.name)
	if h.created(path, name) && h.recursive {
		h.echoMoved = name
	}

	mask := nameFilter(old.isDir)
	h.queue(Record{Action: ActionRenamedOldName, Name: old.name}, mask)
	h.queue(Record{Action: ActionRenamedNewName, Name: name}, mask)
}

// releaseHeld reports an unpaired old name as removed: it left the tree.
func (h *fsnotifyHandle) releaseHeld() {
	old := h.held
	if old == nil {
		return
	}
	h.held = nil

	h.forget(old.name)
	h.queue(Record{Action: ActionRemoved, Name: old.name}, nameFilter(old.isDir))
}

// created tracks a new entry and reports whether it is a directory.
func (h *fsnotifyHandle) created(path, name string) bool {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	h.dirs[name] = struct{}{}
	if h.recursive {
		h.addTree(path)
	}
	return true
}

func (h *fsnotifyHandle) isDir(name string) bool {
	_, ok := h.dirs[name]
	return ok
}

// forget drops name and everything below it from the directory set and
// reports whether name was a directory.
func (h *fsnotifyHandle) forget(name string) bool {
	if !h.isDir(name) {
		return false
	}
	delete(h.dirs, name)
	prefix := name + string(filepath.Separator)
	for dir := range h.dirs {
		if strings.HasPrefix(dir, prefix) {
			delete(h.dirs, dir)
		}
	}
	if h.recursive {
		h.echo = name
	}
	return true
}

// nameFilter is the category a name change of a file or directory falls in.
func nameFilter(isDir bool) Filter {
	if isDir {
		return FilterDirName
	}
	return FilterFileName
}

func (h *fsnotifyHandle) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		h.setOverflow()
		return
	}
	h.fatal = err
}

// queue records r when one of the categories in mask is observed. Once the
// queued records would no longer fit in the request buffer they are
// dropped and the next request reports an overflow instead.
func (h *fsnotifyHandle) queue(r Record, mask Filter) {
	if h.filter&mask == 0 || h.overflowed {
		return
	}

	size := encodedSize(r)
	if h.pendingBytes+size > h.capacity {
		h.setOverflow()
		return
	}

	h.pending = append(h.pending, r)
	h.pendingBytes += size
}

func (h *fsnotifyHandle) setOverflow() {
	h.overflowed = true
	h.pending = nil
	h.pendingBytes = 0
}

func (h *fsnotifyHandle) relative(path string) (string, bool) {
	rel, err := filepath.Rel(h.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// trackChildren records the directories directly inside dir.
func (h *fsnotifyHandle) trackChildren(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		h.logger.Warn("failed to list directory", "path", dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			h.dirs[e.Name()] = struct{}{}
		}
	}
}

// addTree watches dir and every directory below it.
func (h *fsnotifyHandle) addTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			h.logger.Warn("error walking path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() || path == h.root {
			return nil
		}
		if rel, ok := h.relative(path); ok {
			h.dirs[rel] = struct{}{}
		}
		if addErr := h.fsw.Add(path); addErr != nil {
			h.logger.Warn("failed to add subdirectory", "path", path, "error", addErr)
			return nil
		}
		h.logger.Debug("added watch subdirectory", "path", path)
		return nil
	})
	if err != nil {
		h.logger.Warn("failed to walk directory tree", "path", dir, "error", err)
	}
}
