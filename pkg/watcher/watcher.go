package watcher

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// Watcher watches one directory. Create it with New; it is safe to call
// Close from any goroutine, including from inside its own callback.
type Watcher struct {
	port      *Port
	logger    logger.Logger
	path      string
	recursive bool
	filter    Filter
	callback  Callback
	userData  any

	// op never moves: backends keep a pointer to it while a read is pending.
	op *Operation

	mu          sync.Mutex
	handle      Handle
	buf         []byte
	state       State
	completions uint64

	closed atomic.Bool
}

// New opens cfg.Path and issues the first watch request.
//
// New never fails. If the directory cannot be opened, the buffer cannot be
// allocated or the first request cannot be issued, a warning is logged and
// the returned watcher is inactive: it never invokes its callback and makes
// no further calls to the backend.
func New(port *Port, cfg Config) *Watcher {
	if cfg.Filter == 0 {
		cfg.Filter = DefaultFilter
	}
	if cfg.Callback == nil {
		cfg.Callback = func(any, Action, string) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}

	w := &Watcher{
		port:      port,
		logger:    cfg.Logger.With("path", cfg.Path),
		path:      cfg.Path,
		recursive: cfg.Recursive,
		filter:    cfg.Filter,
		callback:  cfg.Callback,
		userData:  cfg.UserData,
		state:     StateInactive,
	}
	w.op = &Operation{
		Recursive: cfg.Recursive,
		Filter:    cfg.Filter,
		port:      port,
	}

	handle, err := port.backend.Open(cfg.Path, cfg.Recursive)
	if err != nil {
		w.logger.Warn("failed to open folder handle", "error", err)
		return w
	}

	buf, err := port.backend.Alloc(DefaultBufferSize())
	if err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			w.logger.Warn("failed to close folder handle", "error", closeErr)
		}
		w.logger.Warn("failed to allocate overlapped IO buffer", "error", err)
		return w
	}

	token, err := port.register(w)
	if err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			w.logger.Warn("failed to close folder handle", "error", closeErr)
		}
		if freeErr := port.backend.Free(buf); freeErr != nil {
			w.logger.Warn("failed to free overlapped IO buffer", "error", freeErr)
		}
		w.logger.Warn("failed to register directory watcher", "error", err)
		return w
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handle = handle
	w.buf = buf
	w.state = StateActive
	w.op.token = token
	w.op.Buffer = buf

	w.logger.Debug("directory watcher created",
		"recursive", w.recursive,
		"filter", w.filter,
		"buffer_size", len(buf))

	w.arm()
	return w
}

// Path returns the watched directory.
func (w *Watcher) Path() string {
	return w.path
}

// Recursive reports whether subdirectories are watched.
func (w *Watcher) Recursive() bool {
	return w.recursive
}

// Filter returns the observed change categories.
func (w *Watcher) Filter() Filter {
	return w.filter
}

// State returns the lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// BufferSize returns the capacity of the notification buffer, or 0 once the
// watcher is inactive.
func (w *Watcher) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Outstanding returns the number of requests in flight: 0 or 1.
func (w *Watcher) Outstanding() int {
	if w.op.Pending() {
		return 1
	}
	return 0
}

// Completions returns the number of completions that were dispatched to the
// callback (data or overflow).
func (w *Watcher) Completions() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completions
}

// Close stops the watcher. An outstanding request is cancelled and Close
// waits until the backend confirms it is no longer outstanding before the
// buffer and handle are released. No callback runs after Close returns,
// except for the remainder of a callback that is executing concurrently.
//
// Close is idempotent and always returns nil.
func (w *Watcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateActive {
		return nil
	}

	w.port.unregister(w.op.token)

	if w.op.Pending() {
		if err := w.handle.Cancel(); err != nil {
			w.logger.Warn("failed to cancel asynchronous IO", "error", err)
		}
		w.op.wait()
	}

	w.release()
	w.logger.Debug("directory watcher closed")
	return nil
}

// complete handles one completion. It runs on the goroutine pumping the port.
func (w *Watcher) complete(c Completion) {
	w.mu.Lock()
	if w.state != StateActive || w.closed.Load() {
		w.mu.Unlock()
		return
	}

	var records []Record
	switch {
	case c.Err == nil && c.Bytes > 0:
		n := c.Bytes
		if n > len(w.buf) {
			n = len(w.buf)
		}
		records = DecodeRecords(w.buf[:n])

	case c.Err == nil || errors.Is(c.Err, ErrOverflow):
		// A successful read with no data means the kernel dropped the batch.
		w.logger.Debug("change notification overflow")
		records = []Record{{Action: ActionOverflow}}

	case errors.Is(c.Err, ErrOperationAborted):
		w.mu.Unlock()
		return

	default:
		w.release()
		w.mu.Unlock()
		w.logger.Warn("error occurred while watching directory", "error", c.Err)
		return
	}

	w.completions++
	w.mu.Unlock()

	// The records own their names, so the buffer is free for the next read
	// even if a callback closes the watcher.
	for _, r := range records {
		if w.closed.Load() {
			return
		}
		w.callback(w.userData, r.Action, r.Name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateActive && !w.closed.Load() {
		w.arm()
	}
}

// arm issues the next request. w.mu must be held, the watcher must be active
// and no request may be outstanding.
func (w *Watcher) arm() {
	if err := w.op.begin(); err != nil {
		w.release()
		w.logger.Warn("failed to arm directory watcher", "error", err)
		return
	}

	if err := w.handle.Arm(w.op); err != nil {
		w.op.abandon()
		w.release()
		w.logger.Warn("failed to arm directory watcher", "error", err)
	}
}

// release moves the watcher to the terminal state. w.mu must be held and no
// request may be outstanding.
func (w *Watcher) release() {
	w.port.unregister(w.op.token)

	if w.handle != nil {
		if err := w.handle.Close(); err != nil {
			w.logger.Warn("failed to close folder handle", "error", err)
		}
	}
	if w.buf != nil {
		if err := w.port.backend.Free(w.buf); err != nil {
			w.logger.Warn("failed to free overlapped IO buffer", "error", err)
		}
	}

	w.handle = nil
	w.buf = nil
	w.op.Buffer = nil
	w.state = StateInactive
}
